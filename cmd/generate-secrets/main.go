// Command generate-secrets prints fresh JWT signing secrets in the
// format expected by the server's .env file.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

// randomHex returns n cryptographically random bytes, hex encoded
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func main() {
	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for SwiftRide")
	fmt.Println("===========================================")
	fmt.Println()

	// 256-bit secrets, one per token type so a leaked refresh secret
	// does not compromise access tokens
	accessSecret, err := randomHex(32)
	if err != nil {
		log.Fatalf("Failed to generate access secret: %v", err)
	}
	refreshSecret, err := randomHex(32)
	if err != nil {
		log.Fatalf("Failed to generate refresh secret: %v", err)
	}

	fmt.Println("Secrets generated successfully.")
	fmt.Println()
	fmt.Println("Add these to your .env file or deployment secrets:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", accessSecret)
	fmt.Printf("JWT_REFRESH_SECRET=%s\n", refreshSecret)
	fmt.Println()
	fmt.Println("IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
