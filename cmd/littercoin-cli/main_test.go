package main

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w
	resultCh := make(chan struct {
		data string
		err  error
	})
	go func() {
		data, err := io.ReadAll(r)
		resultCh <- struct {
			data string
			err  error
		}{data: string(data), err: err}
	}()
	fn()
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	os.Stdout = old
	result := <-resultCh
	if err := r.Close(); err != nil {
		t.Fatalf("failed to close reader: %v", err)
	}
	if result.err != nil {
		t.Fatalf("failed to read stdout: %v", result.err)
	}
	return result.data
}

func TestGetBalanceDialErrorIncludesEndpointAndCause(t *testing.T) {
	originalEndpoint := rpcEndpoint
	rpcEndpoint = "http://test.invalid"
	defer func() { rpcEndpoint = originalEndpoint }()

	originalClient := http.DefaultClient
	http.DefaultClient = &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp 127.0.0.1:8080: connect: connection refused (test stub)")
	})}
	defer func() { http.DefaultClient = originalClient }()

	output := captureStdout(t, func() {
		getBalance("lit1testaddress")
	})

	if !strings.Contains(output, "POST http://test.invalid") {
		t.Fatalf("expected output to include endpoint, got %q", output)
	}
	if !strings.Contains(output, "connection refused (test stub)") {
		t.Fatalf("expected output to include underlying error, got %q", output)
	}
}

func TestApplyGlobalFlagsOverridesEndpoint(t *testing.T) {
	originalEndpoint := rpcEndpoint
	defer func() { rpcEndpoint = originalEndpoint }()

	args, err := applyGlobalFlags([]string{"--rpc", "http://node:7545", "supply"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rpcEndpoint != "http://node:7545" {
		t.Fatalf("unexpected endpoint: %s", rpcEndpoint)
	}
	if len(args) != 1 || args[0] != "supply" {
		t.Fatalf("unexpected remaining args: %v", args)
	}

	if _, err := applyGlobalFlags([]string{"--rpc"}); err == nil {
		t.Fatal("expected error for missing --rpc value")
	}
}

func TestDoRPCRequestRequiresTokenForMutations(t *testing.T) {
	originalToken := rpcAuthToken
	rpcAuthToken = ""
	defer func() { rpcAuthToken = originalToken }()

	if _, err := doRPCRequest([]byte("{}"), authToken); err == nil {
		t.Fatal("expected error when LITTERCOIN_RPC_TOKEN is unset")
	} else if !strings.Contains(err.Error(), "LITTERCOIN_RPC_TOKEN") {
		t.Fatalf("expected error to name the env var, got %v", err)
	}

	originalJWT := adminJWT
	adminJWT = ""
	defer func() { adminJWT = originalJWT }()

	if _, err := doRPCRequest([]byte("{}"), authAdmin); err == nil {
		t.Fatal("expected error when LITTERCOIN_ADMIN_JWT is unset")
	} else if !strings.Contains(err.Error(), "LITTERCOIN_ADMIN_JWT") {
		t.Fatalf("expected error to name the env var, got %v", err)
	}
}
