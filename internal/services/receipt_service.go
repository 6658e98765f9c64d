package services

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phpdave11/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/models"
	"github.com/swiftride/booking-backend/pkg/validator"
)

// ErrReceiptNotAvailable is returned for bookings with no paid seats
var ErrReceiptNotAvailable = errors.New("no paid seats on this booking yet")

type receiptPaymentStore interface {
	GetLatestByBooking(bookingID uuid.UUID) (*models.PaymentTransaction, error)
}

// ReceiptService renders paid bookings into a PDF receipt the passenger
// can present to the driver
type ReceiptService struct {
	bookings messageBookingStore
	rides    rideLookup
	payments receiptPaymentStore
	phones   *validator.PhoneValidator
	logger   *logrus.Logger
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(bookings messageBookingStore, rides rideLookup, payments receiptPaymentStore, logger *logrus.Logger) *ReceiptService {
	return &ReceiptService{
		bookings: bookings,
		rides:    rides,
		payments: payments,
		phones:   validator.NewPhoneValidator(),
		logger:   logger,
	}
}

// Generate builds the receipt PDF for a booking. Only the passenger and
// the ride's driver may fetch it.
func (s *ReceiptService) Generate(userID, bookingID uuid.UUID) ([]byte, string, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, "", err
	}
	if booking == nil {
		return nil, "", ErrBookingNotFound
	}

	ride, err := s.rides.GetByID(booking.RideID)
	if err != nil {
		return nil, "", err
	}
	if ride == nil {
		return nil, "", ErrRideNotFound
	}

	if userID != booking.UserID && userID != ride.DriverID {
		return nil, "", ErrNotBookingOwner
	}
	if booking.PaidSeats == 0 {
		return nil, "", ErrReceiptNotAvailable
	}

	txn, err := s.payments.GetLatestByBooking(bookingID)
	if err != nil {
		return nil, "", err
	}

	pdfBytes, err := s.buildReceiptPDF(booking, ride, txn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render receipt: %w", err)
	}

	s.logger.WithField("booking_id", bookingID).Info("Receipt generated")

	filename := fmt.Sprintf("RECEIPT_%s.pdf", shortID(bookingID))
	return pdfBytes, filename, nil
}

func (s *ReceiptService) buildReceiptPDF(booking *models.Booking, ride *models.Ride, txn *models.PaymentTransaction) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("SwiftRide Receipt", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "SWIFTRIDE RECEIPT")
	pdf.Ln(12)

	phone := booking.PassengerPhone
	if formatted, err := s.phones.Format(phone); err == nil {
		phone = formatted
	}

	amountPaid := float64(booking.PaidSeats) * ride.PricePerSeat
	paymentLine := "-"
	if txn != nil && txn.Status == models.TransactionSuccessful {
		paymentLine = fmt.Sprintf("%s (%s)", strings.ToUpper(txn.Provider), txn.ExternalRef)
	}

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Receipt No    : RCP-%s", shortID(booking.ID)),
		fmt.Sprintf("Passenger     : %s", booking.PassengerName),
		fmt.Sprintf("Phone         : %s", phone),
		fmt.Sprintf("Route         : %s -> %s", ride.Origin, ride.Destination),
		fmt.Sprintf("Departure     : %s", ride.DepartureTime.Format("2006-01-02 15:04")),
		fmt.Sprintf("Driver        : %s", ride.DriverName),
		fmt.Sprintf("Seats Paid    : %d", booking.PaidSeats),
		fmt.Sprintf("Price/Seat    : %s", formatXAF(ride.PricePerSeat, ride.Currency)),
		fmt.Sprintf("Payment       : %s", paymentLine),
	}
	for _, line := range lines {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "Total Paid: "+formatXAF(amountPaid, ride.Currency))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, fmt.Sprintf("Generated %s. Present this receipt to the driver at boarding.", time.Now().Format("2006-01-02 15:04")), "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatXAF(amount float64, currency string) string {
	return fmt.Sprintf("%.0f %s", amount, currency)
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}
