// Command keygen generates signing key material for keyline: a random
// HMAC secret for the HS algorithms, or a PKCS8 PEM private key for the
// RS and ES algorithms.
package main

import (
	"crypto/elliptic"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/keyline/keyline/pkg/cryptox"
	"github.com/keyline/keyline/pkg/jwtx"
)

func main() {
	var (
		algorithm = pflag.StringP("algorithm", "a", "HS256", "Target algorithm (HS256/384/512, RS256/384/512, ES256/384)")
		rsaBits   = pflag.Int("rsa-bits", 4096, "RSA key size for the RS algorithms")
		outFile   = pflag.StringP("out", "o", "", "Output file (default stdout)")
	)
	pflag.Parse()

	alg, err := jwtx.ParseAlgorithm(*algorithm)
	if err != nil {
		log.Fatalf("keygen: %v", err)
	}

	material, err := generate(alg, *rsaBits)
	if err != nil {
		log.Fatalf("keygen: %v", err)
	}

	if *outFile == "" {
		fmt.Print(string(material))
		return
	}
	if err := os.WriteFile(*outFile, material, 0o600); err != nil {
		log.Fatalf("keygen: write %s: %v", *outFile, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s key to %s\n", alg, *outFile)
}

func generate(alg jwtx.Algorithm, rsaBits int) ([]byte, error) {
	switch alg.Family() {
	case jwtx.FamilyHMAC:
		secret, err := cryptox.GenerateToken(alg.MinSecretLen())
		if err != nil {
			return nil, err
		}
		return []byte(secret + "\n"), nil

	case jwtx.FamilyRSA:
		return cryptox.GenerateRSAKey(rsaBits)

	case jwtx.FamilyECDSA:
		curve := elliptic.P256()
		if alg == jwtx.ES384 {
			curve = elliptic.P384()
		}
		return cryptox.GenerateECKey(curve)

	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}
