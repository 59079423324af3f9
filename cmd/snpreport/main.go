package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ruteri/sev-launch-kit/certs"
	"github.com/ruteri/sev-launch-kit/common"
	"github.com/ruteri/sev-launch-kit/report"
	"github.com/ruteri/sev-launch-kit/session"
	"github.com/urfave/cli/v2"
)

var flagReport *cli.StringFlag = &cli.StringFlag{
	Name:     "report",
	Required: true,
	Usage:    "Path to a raw 1184-byte attestation report",
}
var flagVCEK *cli.StringFlag = &cli.StringFlag{
	Name:  "vcek",
	Usage: "Path to the DER-encoded VCEK certificate",
}
var flagCertChain *cli.StringFlag = &cli.StringFlag{
	Name:  "cert-chain",
	Usage: "Path to the PEM-encoded ASK+ARK chain as served by the AMD KDS",
}
var flagDebug *cli.BoolFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Usage: "Enable debug logging",
}
var flagJSON *cli.BoolFlag = &cli.BoolFlag{
	Name:  "log-json",
	Usage: "Log in JSON format",
}

func main() {
	app := &cli.App{
		Name:  "snpreport",
		Usage: "Inspect and verify SEV-SNP attestation reports",
		Before: func(cCtx *cli.Context) error {
			return session.Init()
		},
		Commands: []*cli.Command{
			{
				Name:        "inspect",
				Usage:       "Parse a raw report and print its fields",
				Description: "Reads a binary attestation report and prints every field in human-readable form. No signature check is performed.",
				Flags: []cli.Flag{
					flagReport,
					flagDebug,
					flagJSON,
				},
				Action: runInspect,
			},
			{
				Name:        "verify",
				Usage:       "Check a report signature against a VCEK chain",
				Description: "Validates the ARK->ASK->VCEK chain and verifies the report signature with the VCEK public key.",
				Flags: []cli.Flag{
					flagReport,
					flagVCEK,
					flagCertChain,
					flagDebug,
					flagJSON,
				},
				Action: runVerify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadReport(cCtx *cli.Context) (*report.AttestationReport, error) {
	raw, err := os.ReadFile(cCtx.String(flagReport.Name))
	if err != nil {
		return nil, fmt.Errorf("could not read report: %w", err)
	}

	return report.Unmarshal(raw)
}

func runInspect(cCtx *cli.Context) error {
	log := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(flagDebug.Name),
		JSON:    cCtx.Bool(flagJSON.Name),
		Service: "snpreport",
		Version: common.Version,
	})

	r, err := loadReport(cCtx)
	if err != nil {
		return err
	}

	log.Debug("parsed attestation report", "version", r.Version, "vmpl", r.VMPL)
	fmt.Println(r.String())
	return nil
}

func runVerify(cCtx *cli.Context) error {
	log := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(flagDebug.Name),
		JSON:    cCtx.Bool(flagJSON.Name),
		Service: "snpreport",
		Version: common.Version,
	})

	r, err := loadReport(cCtx)
	if err != nil {
		return err
	}

	vcekPath := cCtx.String(flagVCEK.Name)
	chainPath := cCtx.String(flagCertChain.Name)
	if vcekPath == "" || chainPath == "" {
		return fmt.Errorf("both --vcek and --cert-chain are required for verification")
	}

	vcekDER, err := os.ReadFile(vcekPath)
	if err != nil {
		return fmt.Errorf("could not read VCEK certificate: %w", err)
	}
	chainPEM, err := os.ReadFile(chainPath)
	if err != nil {
		return fmt.Errorf("could not read certificate chain: %w", err)
	}

	chain, err := certs.ChainFromKDS(vcekDER, chainPEM)
	if err != nil {
		return err
	}

	if err := r.Verify(chain); err != nil {
		log.Error("report verification failed", "err", err)
		return err
	}

	log.Info("report signature verified", "version", r.Version, "sig_algo", r.SigAlgo)
	fmt.Println("ok")
	return nil
}
