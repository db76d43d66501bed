package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/JoshuaRamirez/acs-gateway/internal/crypto"
	"github.com/JoshuaRamirez/acs-gateway/internal/keystore"
	pkgcrypto "github.com/JoshuaRamirez/acs-gateway/pkg/crypto"
)

func main() {
	tempDir := filepath.Join(os.TempDir(), "acsgateway_manual_test")
	defer os.RemoveAll(tempDir)

	fmt.Println("=== ACS Gateway KeyStore/EncryptionEngine Manual Verification ===")
	fmt.Printf("Test directory: %s\n\n", tempDir)

	masterKey, err := pkgcrypto.GenerateKey(32)
	if err != nil {
		log.Fatal(err)
	}

	ks, err := keystore.New(tempDir, masterKey)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("✓ KeyStore created successfully")

	engine, err := crypto.NewEngine(ks, 16)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("✓ EncryptionEngine created successfully")

	tenantID := "tenant-acme"
	plaintext := "super secret ssn: 123-45-6789"

	fmt.Printf("\nEncrypting a field for tenant %q...\n", tenantID)
	ciphertext, err := engine.Encrypt(plaintext, tenantID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("✓ Field encrypted")
	fmt.Printf("  - Ciphertext (base64): %s\n", ciphertext)

	keyPath := filepath.Join(tempDir, tenantID, "key_v1.json")
	fmt.Printf("\nKey file layout verification:\n  - %s\n    Exists: %v\n", keyPath, fileExists(keyPath))

	fmt.Println("\nDecrypting the field back...")
	decrypted, err := engine.Decrypt(ciphertext, tenantID)
	if err != nil {
		log.Fatal(err)
	}
	if decrypted != plaintext {
		log.Fatalf("round-trip mismatch: got %q, want %q", decrypted, plaintext)
	}
	fmt.Println("✓ Field decrypted and matches original plaintext")

	fmt.Println("\nRotating tenant key...")
	newVersion, err := engine.RotateKeys(tenantID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✓ Key rotated to version %s\n", newVersion)

	fmt.Println("\nDecrypting a value stamped with the old key version...")
	decryptedAfterRotation, err := engine.Decrypt(ciphertext, tenantID)
	if err != nil {
		log.Fatal(err)
	}
	if decryptedAfterRotation != plaintext {
		log.Fatalf("post-rotation decrypt mismatch: got %q, want %q", decryptedAfterRotation, plaintext)
	}
	fmt.Println("✓ Legacy-version ciphertext still decrypts after rotation")

	fmt.Println("\nFinal directory structure:")
	printDirTree(tempDir, "")

	fmt.Println("\n=== Manual Verification Complete ===")
	fmt.Println("All KeyStore/EncryptionEngine operations working correctly!")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func printDirTree(path string, prefix string) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}

	for i, entry := range entries {
		isLast := i == len(entries)-1
		connector := "├── "
		if isLast {
			connector = "└── "
		}

		fmt.Printf("%s%s%s\n", prefix, connector, entry.Name())

		if entry.IsDir() {
			newPrefix := prefix
			if isLast {
				newPrefix += "    "
			} else {
				newPrefix += "│   "
			}
			printDirTree(filepath.Join(path, entry.Name()), newPrefix)
		}
	}
}
