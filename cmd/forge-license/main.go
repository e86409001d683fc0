// Command forge-license issues and inspects license files.
//
//	forge-license -issue -key private.pem -licensee acme -days 365 -out forge.lic
//	forge-license -inspect forge.lic -pub public.pem
package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/corpusforge/forge/pkg/forge/license"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "forge-license: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		issue      = flag.Bool("issue", false, "issue a new license")
		inspect    = flag.String("inspect", "", "license file to inspect")
		keyPath    = flag.String("key", "", "PEM private key for issuing")
		pubPath    = flag.String("pub", "", "PEM public key for inspection")
		licensee   = flag.String("licensee", "", "licensee name")
		days       = flag.Int("days", 365, "validity in days")
		out        = flag.String("out", "forge.lic", "output path")
		passphrase = flag.String("passphrase", "", "file encryption passphrase")
	)
	flag.Parse()

	switch {
	case *issue:
		if *keyPath == "" || *licensee == "" {
			return fmt.Errorf("issue requires -key and -licensee")
		}
		key, err := loadPrivateKey(*keyPath)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		signed, err := license.Sign(license.Payload{
			Licensee:  *licensee,
			IssuedAt:  now,
			ExpiresAt: now.AddDate(0, 0, *days),
		}, key)
		if err != nil {
			return err
		}
		sealed, err := license.Seal(signed, *passphrase)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, sealed, 0o600); err != nil {
			return err
		}
		fmt.Printf("issued %s for %s, valid %d days\n", *out, *licensee, *days)
		return nil

	case *inspect != "":
		if *pubPath == "" {
			return fmt.Errorf("inspect requires -pub")
		}
		pemData, err := os.ReadFile(*pubPath)
		if err != nil {
			return err
		}
		pub, err := license.ParsePublicKey(pemData)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(*inspect)
		if err != nil {
			return err
		}
		signed, err := license.Unseal(data, *passphrase)
		if err != nil {
			return err
		}
		payload, err := license.Verify(signed, pub, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("licensee:  %s\nissued:    %s\nexpires:   %s\n",
			payload.Licensee,
			payload.IssuedAt.Format(time.RFC3339),
			payload.ExpiresAt.Format(time.RFC3339))
		return nil
	}

	flag.Usage()
	return fmt.Errorf("nothing to do: pass -issue or -inspect")
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s is not an RSA key", path)
	}
	return key, nil
}
