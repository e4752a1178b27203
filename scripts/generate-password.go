// Package main is a development utility for generating a random password with its
// bcrypt hash pre-computed. It prints the raw password, the hash, and a ready-to-run
// SQL UPDATE statement so developers can quickly reset the seeded IT account in a
// local database without running the full server flow. Do not use generated
// passwords in production — create accounts through the API so the change lands in
// the audit trail.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	// Generate random bytes
	randomBytes := make([]byte, 24)
	_, err := rand.Read(randomBytes)
	if err != nil {
		log.Fatal(err)
	}

	password := base64.RawURLEncoding.EncodeToString(randomBytes)

	// Hash with bcrypt, same cost the server uses
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Password Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nPassword: %s\n", password)
	fmt.Printf("\nHash: %s\n", string(hashBytes))
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Update:")
	fmt.Println("==========================================================")
	fmt.Printf(`
UPDATE users
SET password_hash = '%s'
WHERE username = 'it-admin';
`, string(hashBytes))
	fmt.Println("\n==========================================================")
}
