package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	merchantNow     = time.Now
	merchantRPCCall = callMerchantRPC
)

func callMerchantRPC(method string, param interface{}, auth authLevel) (json.RawMessage, error) {
	return callRPC(method, param, auth)
}

func runMerchantCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, merchantUsage())
		return 1
	}

	switch args[0] {
	case "mint":
		return runMerchantMint(args[1:], stdout, stderr)
	case "extend":
		return runMerchantExtend(args[1:], stdout, stderr)
	case "invalidate":
		return runMerchantInvalidate(args[1:], stdout, stderr)
	case "burn":
		return runMerchantBurn(args[1:], stdout, stderr)
	case "get":
		return runMerchantGet(args[1:], stdout, stderr)
	case "valid":
		return runMerchantValid(args[1:], stdout, stderr)
	case "expired":
		return runMerchantExpired(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown merchant subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, merchantUsage())
		return 1
	}
}

func runMerchantMint(args []string, stdout, stderr io.Writer) int {
	fs := newMerchantFlagSet("merchant mint", stderr)
	var (
		caller  string
		holder  string
		expires string
	)
	fs.StringVar(&caller, "caller", "", "admin bech32 address")
	fs.StringVar(&holder, "holder", "", "merchant bech32 address")
	fs.StringVar(&expires, "expires", "", "expiry as +duration or RFC3339 timestamp")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if caller == "" {
		return printMerchantError(stderr, "--caller is required")
	}
	if holder == "" {
		return printMerchantError(stderr, "--holder is required")
	}
	if expires == "" {
		return printMerchantError(stderr, "--expires is required")
	}
	expiresAt, err := parseMerchantExpiry(expires, merchantNow())
	if err != nil {
		return printMerchantError(stderr, err.Error())
	}
	param := map[string]interface{}{
		"caller":    caller,
		"holder":    holder,
		"expiresAt": expiresAt,
	}
	result, err := merchantRPCCall("merchant_mint", param, authAdmin)
	if err != nil {
		return printMerchantError(stderr, err.Error())
	}
	writeMerchantResult(stdout, result)
	return 0
}

func runMerchantExtend(args []string, stdout, stderr io.Writer) int {
	fs := newMerchantFlagSet("merchant extend", stderr)
	var (
		caller  string
		tokenID uint64
		seconds int64
	)
	fs.StringVar(&caller, "caller", "", "admin bech32 address")
	fs.Uint64Var(&tokenID, "token", 0, "credential token id")
	fs.Int64Var(&seconds, "seconds", 0, "seconds to add to the credential expiry")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if caller == "" {
		return printMerchantError(stderr, "--caller is required")
	}
	if tokenID == 0 {
		return printMerchantError(stderr, "--token is required")
	}
	if seconds <= 0 {
		return printMerchantError(stderr, "--seconds must be positive")
	}
	param := map[string]interface{}{
		"caller":            caller,
		"tokenId":           tokenID,
		"additionalSeconds": seconds,
	}
	result, err := merchantRPCCall("merchant_addExpiration", param, authAdmin)
	if err != nil {
		return printMerchantError(stderr, err.Error())
	}
	writeMerchantResult(stdout, result)
	return 0
}

func runMerchantInvalidate(args []string, stdout, stderr io.Writer) int {
	fs := newMerchantFlagSet("merchant invalidate", stderr)
	var (
		caller  string
		tokenID uint64
	)
	fs.StringVar(&caller, "caller", "", "admin bech32 address")
	fs.Uint64Var(&tokenID, "token", 0, "credential token id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if caller == "" {
		return printMerchantError(stderr, "--caller is required")
	}
	if tokenID == 0 {
		return printMerchantError(stderr, "--token is required")
	}
	param := map[string]interface{}{
		"caller":  caller,
		"tokenId": tokenID,
	}
	result, err := merchantRPCCall("merchant_invalidate", param, authAdmin)
	if err != nil {
		return printMerchantError(stderr, err.Error())
	}
	writeMerchantResult(stdout, result)
	return 0
}

func runMerchantBurn(args []string, stdout, stderr io.Writer) int {
	fs := newMerchantFlagSet("merchant burn", stderr)
	var (
		caller  string
		tokenID uint64
	)
	fs.StringVar(&caller, "caller", "", "credential holder bech32 address")
	fs.Uint64Var(&tokenID, "token", 0, "credential token id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if caller == "" {
		return printMerchantError(stderr, "--caller is required")
	}
	if tokenID == 0 {
		return printMerchantError(stderr, "--token is required")
	}
	param := map[string]interface{}{
		"caller":  caller,
		"tokenId": tokenID,
	}
	result, err := merchantRPCCall("merchant_burn", param, authToken)
	if err != nil {
		return printMerchantError(stderr, err.Error())
	}
	writeMerchantResult(stdout, result)
	return 0
}

func runMerchantGet(args []string, stdout, stderr io.Writer) int {
	fs := newMerchantFlagSet("merchant get", stderr)
	var tokenID uint64
	fs.Uint64Var(&tokenID, "token", 0, "credential token id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if tokenID == 0 {
		return printMerchantError(stderr, "--token is required")
	}
	result, err := merchantRPCCall("merchant_get", map[string]uint64{"tokenId": tokenID}, authNone)
	if err != nil {
		return printMerchantError(stderr, err.Error())
	}
	writeMerchantResult(stdout, result)
	return 0
}

func runMerchantValid(args []string, stdout, stderr io.Writer) int {
	fs := newMerchantFlagSet("merchant valid", stderr)
	var holder string
	fs.StringVar(&holder, "holder", "", "merchant bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if holder == "" {
		return printMerchantError(stderr, "--holder is required")
	}
	result, err := merchantRPCCall("merchant_isValid", map[string]string{"holder": holder}, authNone)
	if err != nil {
		return printMerchantError(stderr, err.Error())
	}
	writeMerchantResult(stdout, result)
	return 0
}

func runMerchantExpired(args []string, stdout, stderr io.Writer) int {
	fs := newMerchantFlagSet("merchant expired", stderr)
	var tokenID uint64
	fs.Uint64Var(&tokenID, "token", 0, "credential token id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if tokenID == 0 {
		return printMerchantError(stderr, "--token is required")
	}
	result, err := merchantRPCCall("merchant_isExpired", map[string]uint64{"tokenId": tokenID}, authNone)
	if err != nil {
		return printMerchantError(stderr, err.Error())
	}
	writeMerchantResult(stdout, result)
	return 0
}

// parseMerchantExpiry accepts either an absolute RFC3339 timestamp or a
// +duration offset relative to now, e.g. +8760h for one year.
func parseMerchantExpiry(value string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "+") {
		d, err := time.ParseDuration(strings.TrimPrefix(trimmed, "+"))
		if err != nil {
			return 0, fmt.Errorf("invalid expiry duration %q", value)
		}
		if d <= 0 {
			return 0, fmt.Errorf("expiry duration must be positive")
		}
		return now.Add(d).Unix(), nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry timestamp %q, want RFC3339 or +duration", value)
	}
	return ts.Unix(), nil
}

func newMerchantFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printMerchantError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}

func writeMerchantResult(stdout io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(stdout, "No result.")
		return
	}
	var pretty map[string]interface{}
	if err := json.Unmarshal(result, &pretty); err == nil {
		encoded, err := json.MarshalIndent(pretty, "", "  ")
		if err == nil {
			fmt.Fprintln(stdout, string(encoded))
			return
		}
	}
	fmt.Fprintln(stdout, string(result))
}

func merchantUsage() string {
	return strings.Join([]string{
		"Usage: littercoin-cli merchant <subcommand> [flags]",
		"",
		"Subcommands:",
		"  mint --caller <admin> --holder <addr> --expires <+duration|RFC3339>  - Issues a merchant credential",
		"  extend --caller <admin> --token <id> --seconds <n>                   - Extends a credential expiry",
		"  invalidate --caller <admin> --token <id>                             - Burns a credential as admin",
		"  burn --caller <holder> --token <id>                                  - Burns your own credential",
		"  get --token <id>                                                     - Shows a credential",
		"  valid --holder <addr>                                                - Checks holder eligibility",
		"  expired --token <id>                                                 - Checks credential expiry",
	}, "\n")
}
