package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"citywalk/internal/certification/certificate"
	"citywalk/internal/certification/providers"
)

func readCertificate(path string, stdin io.Reader) (*certificate.Certificate, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	return certificate.Parse(data)
}

func newDigestCmd() *cobra.Command {
	var canonical bool
	cmd := &cobra.Command{
		Use:   "digest <certificate.json|->",
		Short: "Print the SHA-256 digest of a certificate's canonical form",
		Example: `  sealctl digest cert.json
  cat cert.json | sealctl digest - --canonical`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := readCertificate(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			data, err := cert.Canonical()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if canonical {
				fmt.Fprintln(out, string(data))
			}
			fmt.Fprintln(out, certificate.Digest(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&canonical, "canonical", false, "also print the canonical serialization")
	return cmd
}

type verifyOutput struct {
	Valid       bool   `json:"valid"`
	Provider    string `json:"provider"`
	ReferenceID string `json:"referenceId"`
	Expected    string `json:"expected"`
}

func newVerifyCmd() *cobra.Command {
	var (
		provider    string
		referenceID string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "verify <certificate.json|->",
		Short: "Check a reference id against a certificate without contacting any backend",
		Example: `  sealctl verify cert.json --provider local --reference-id 0x7cfa...`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := readCertificate(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			p, ok := providers.NewDefaultRegistry().Get(provider)
			if !ok {
				return fmt.Errorf("unknown provider %q", provider)
			}
			strategy, ok := p.(*providers.Strategy)
			if !ok {
				return fmt.Errorf("provider %q does not support offline verification", provider)
			}
			expected, _, _, err := strategy.ReferenceFor(cert)
			if err != nil {
				return err
			}
			res, err := p.Verify(cmd.Context(), providers.VerifyRequest{
				ReferenceID: referenceID,
				Certificate: cert,
			})
			if err != nil {
				return err
			}

			out := verifyOutput{Valid: res.Valid, Provider: provider, ReferenceID: referenceID, Expected: expected}
			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				verdict := "VALID"
				if !out.Valid {
					verdict = "TAMPERED"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpected: %s\n", verdict, expected)
			}
			if !res.Valid {
				return errVerificationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", providers.NameLocal, "provider that notarized the certificate")
	cmd.Flags().StringVar(&referenceID, "reference-id", "", "stored reference id")
	cmd.Flags().StringVarP(&output, "output", "o", "plain", "output format: plain|json")
	_ = cmd.MarkFlagRequired("reference-id")
	return cmd
}

var errVerificationFailed = errors.New("verification failed")
