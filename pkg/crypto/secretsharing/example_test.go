// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package secretsharing_test

import (
	"bytes"
	"fmt"
	"log"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/secretsharing"
)

// ExampleShamir demonstrates basic usage of Shamir's Secret Sharing.
func ExampleShamir() {
	// Any 2 of the 3 shares recover the secret
	shamir, err := secretsharing.NewShamir(&secretsharing.ShareConfig{
		Threshold:   2,
		TotalShares: 3,
	})
	if err != nil {
		log.Fatal(err)
	}

	secret := bytes.Repeat([]byte{0x5a}, secretsharing.SecretSize)
	shares, err := shamir.Split(secret)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Secret split into %d shares\n", len(shares))

	recovered, err := shamir.Recover([]secretsharing.Share{shares[0], shares[2]})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Secret recovered: %v\n", bytes.Equal(recovered, secret))

	// Output:
	// Secret split into 3 shares
	// Secret recovered: true
}
