package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"littercoin/crypto"
	"littercoin/native/coin"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("LITTERCOIN_RPC_TOKEN")
var adminJWT = os.Getenv("LITTERCOIN_ADMIN_JWT")

type authLevel int

const (
	authNone authLevel = iota
	authToken
	authAdmin
)

const voucherTTL = time.Hour

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		generateKey()
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "coins":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an owner address.")
			printUsage()
			return
		}
		listCoins(args[1])
	case "coin":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a coin id.")
			printUsage()
			return
		}
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid coin id.")
			return
		}
		getCoin(id)
	case "supply":
		queryNoParams("coin_supply")
	case "pool":
		queryNoParams("coin_pool")
	case "status":
		queryNoParams("ledger_status")
	case "nonce-used":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a voucher nonce.")
			printUsage()
			return
		}
		queryOneParam("coin_nonceUsed", map[string]string{"nonce": args[1]})
	case "receipt":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a receipt id.")
			printUsage()
			return
		}
		queryOneParam("coin_receipt", map[string]string{"id": args[1]})
	case "receipts":
		param := map[string]string{}
		if len(args) > 1 {
			param["redeemer"] = args[1]
		}
		queryOneParam("coin_listReceipts", param)
	case "sign-voucher":
		if len(args) < 5 {
			fmt.Println("Error: Please provide a beneficiary, amount, nonce and key file.")
			printUsage()
			return
		}
		amount, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid amount.")
			return
		}
		signVoucher(args[1], amount, args[3], args[4], false)
	case "mint":
		if len(args) < 5 {
			fmt.Println("Error: Please provide a beneficiary, amount, nonce and key file.")
			printUsage()
			return
		}
		amount, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid amount.")
			return
		}
		signVoucher(args[1], amount, args[3], args[4], true)
	case "transfer":
		if len(args) < 5 {
			fmt.Println("Error: Please provide a caller, coin id, current owner and recipient.")
			printUsage()
			return
		}
		id, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Println("Error: Invalid coin id.")
			return
		}
		transferCoin(args[1], id, args[3], args[4])
	case "redeem":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a redeemer address and at least one coin id.")
			printUsage()
			return
		}
		ids := make([]uint64, 0, len(args)-2)
		for _, raw := range args[2:] {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				fmt.Printf("Error: Invalid coin id %q.\n", raw)
				return
			}
			ids = append(ids, id)
		}
		redeemCoins(args[1], ids)
	case "deposit":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a depositor address and a value.")
			printUsage()
			return
		}
		depositFunds(args[1], args[2])
	case "merchant":
		code := runMerchantCommand(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
		return
	case "pause":
		if len(args) < 2 {
			fmt.Println("Error: Please provide the admin address.")
			printUsage()
			return
		}
		setPaused("ledger_pause", args[1])
	case "resume":
		if len(args) < 2 {
			fmt.Println("Error: Please provide the admin address.")
			printUsage()
			return
		}
		setPaused("ledger_resume", args[1])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}

	fileName := "littercoin.key"
	if err := os.WriteFile(fileName, key.Bytes(), 0600); err != nil {
		panic(fmt.Sprintf("Failed to save key to %s: %v", fileName, err))
	}

	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely. Voucher signing refuses to run without it.")
}

func getBalance(addr string) {
	result, err := callRPC("coin_balance", map[string]string{"address": addr}, authNone)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	var account struct {
		Address string `json:"address"`
		Balance string `json:"balance"`
		Rewards string `json:"rewards"`
	}
	if err := json.Unmarshal(result, &account); err != nil {
		fmt.Printf("Error decoding balance: %v\n", err)
		return
	}
	fmt.Printf("State for: %s\n", account.Address)
	fmt.Printf("  Balance: %s\n", account.Balance)
	fmt.Printf("  Rewards: %s\n", account.Rewards)
}

func listCoins(owner string) {
	result, err := callRPC("coin_listByOwner", map[string]string{"owner": owner}, authNone)
	if err != nil {
		fmt.Printf("Error listing coins: %v\n", err)
		return
	}
	var coins []struct {
		ID        uint64 `json:"id"`
		Status    string `json:"status"`
		Transfers uint64 `json:"transfers"`
		MintedAt  int64  `json:"mintedAt"`
	}
	if err := json.Unmarshal(result, &coins); err != nil {
		fmt.Printf("Error decoding coins: %v\n", err)
		return
	}
	if len(coins) == 0 {
		fmt.Printf("No coins held by %s\n", owner)
		return
	}
	fmt.Printf("Coins held by %s:\n", owner)
	for _, c := range coins {
		fmt.Printf("  - ID %d: %s, %d transfer(s), minted %s\n",
			c.ID, c.Status, c.Transfers,
			time.Unix(c.MintedAt, 0).UTC().Format(time.RFC3339))
	}
}

func getCoin(id uint64) {
	result, err := callRPC("coin_get", map[string]uint64{"id": id}, authNone)
	if err != nil {
		fmt.Printf("Error fetching coin: %v\n", err)
		return
	}
	printJSONResult(result)
}

func queryNoParams(method string) {
	result, err := callRPC(method, nil, authNone)
	if err != nil {
		fmt.Printf("Error calling %s: %v\n", method, err)
		return
	}
	printJSONResult(result)
}

func queryOneParam(method string, param interface{}) {
	result, err := callRPC(method, param, authNone)
	if err != nil {
		fmt.Printf("Error calling %s: %v\n", method, err)
		return
	}
	printJSONResult(result)
}

// signVoucher builds a mint voucher for the beneficiary, signs it with the
// admin key file, and either prints the signed voucher or submits it to the
// node when submit is true.
func signVoucher(beneficiary string, amount uint64, nonce, keyFile string, submit bool) {
	privKey, err := loadPrivateKey(keyFile)
	if err != nil {
		fmt.Printf("Error loading private key: %v\n", err)
		return
	}

	addr, err := crypto.DecodeAddress(beneficiary)
	if err != nil {
		fmt.Printf("Error: invalid beneficiary address: %v\n", err)
		return
	}

	chainID, err := fetchChainID()
	if err != nil {
		fmt.Printf("Error fetching chain id from node: %v\n", err)
		return
	}

	voucher := coin.MintVoucher{
		Domain:      coin.MintVoucherDomainV1,
		ChainID:     chainID,
		Beneficiary: addr.Bytes(),
		Amount:      amount,
		Nonce:       nonce,
		Expiry:      time.Now().Add(voucherTTL).Unix(),
	}
	sig, err := voucher.Sign(privKey)
	if err != nil {
		fmt.Printf("Error signing voucher: %v\n", err)
		return
	}
	sigHex := "0x" + hex.EncodeToString(sig)

	if !submit {
		encoded, err := json.MarshalIndent(map[string]interface{}{
			"voucher":   voucher,
			"signature": sigHex,
		}, "", "  ")
		if err != nil {
			fmt.Printf("Error encoding voucher: %v\n", err)
			return
		}
		fmt.Println(string(encoded))
		return
	}

	result, err := callRPCPositional("coin_mint", []interface{}{voucher, sigHex}, authToken)
	if err != nil {
		fmt.Printf("Error minting coins: %v\n", err)
		return
	}
	printJSONResult(result)
}

func transferCoin(caller string, id uint64, from, to string) {
	param := map[string]interface{}{
		"caller": caller,
		"coinId": id,
		"from":   from,
		"to":     to,
	}
	result, err := callRPC("coin_transfer", param, authToken)
	if err != nil {
		fmt.Printf("Error transferring coin: %v\n", err)
		return
	}
	printJSONResult(result)
}

func redeemCoins(caller string, ids []uint64) {
	param := map[string]interface{}{
		"caller":  caller,
		"coinIds": ids,
	}
	result, err := callRPC("coin_redeem", param, authToken)
	if err != nil {
		fmt.Printf("Error redeeming coins: %v\n", err)
		return
	}
	printJSONResult(result)
}

func depositFunds(caller, value string) {
	param := map[string]string{
		"caller": caller,
		"value":  value,
	}
	result, err := callRPC("coin_deposit", param, authToken)
	if err != nil {
		fmt.Printf("Error depositing: %v\n", err)
		return
	}
	printJSONResult(result)
}

func setPaused(method, caller string) {
	result, err := callRPC(method, map[string]string{"caller": caller}, authAdmin)
	if err != nil {
		fmt.Printf("Error calling %s: %v\n", method, err)
		return
	}
	printJSONResult(result)
}

// --- RPC HELPER FUNCTIONS ---

func fetchChainID() (uint64, error) {
	result, err := callRPC("ledger_status", nil, authNone)
	if err != nil {
		return 0, err
	}
	var status struct {
		ChainID uint64 `json:"chainId"`
	}
	if err := json.Unmarshal(result, &status); err != nil {
		return 0, fmt.Errorf("failed to decode status from node")
	}
	return status.ChainID, nil
}

func callRPC(method string, param interface{}, auth authLevel) (json.RawMessage, error) {
	params := []interface{}{}
	if param != nil {
		params = append(params, param)
	}
	return callRPCPositional(method, params, auth)
}

func callRPCPositional(method string, params []interface{}, auth authLevel) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := doRPCRequest(payload, auth)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func doRPCRequest(payload []byte, auth authLevel) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	switch auth {
	case authToken:
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("this call requires LITTERCOIN_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	case authAdmin:
		if adminJWT == "" {
			return nil, fmt.Errorf("this call requires LITTERCOIN_ADMIN_JWT to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(adminJWT))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

func loadPrivateKey(path string) (*crypto.PrivateKey, error) {
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("private key file %s not found. run ./littercoin-cli generate-key first", path)
		}
		return nil, fmt.Errorf("failed to read private key file %s: %w", path, err)
	}
	if len(keyBytes) == 0 {
		return nil, fmt.Errorf("private key file %s is empty. run ./littercoin-cli generate-key first", path)
	}
	privKey, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key in %s: %w", path, err)
	}
	return privKey, nil
}

func printJSONResult(result json.RawMessage) {
	if len(result) == 0 {
		fmt.Println("No result.")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return
	}
	fmt.Println(buf.String())
}

func printUsage() {
	fmt.Println("Usage: littercoin-cli <command> [arguments]")
	fmt.Println()
	fmt.Println("Voucher commands need the admin signing key. Run ./littercoin-cli generate-key first,")
	fmt.Println("or point them at the keystore-exported key the node was bootstrapped with.")
	fmt.Println("Commands:")
	fmt.Println("  generate-key                        - Generates a new key and saves to littercoin.key")
	fmt.Println("  balance <address>                   - Shows the redeemed balance and rewards of an address")
	fmt.Println("  coins <address>                     - Lists active coins held by an address")
	fmt.Println("  coin <id>                           - Shows a single coin")
	fmt.Println("  supply                              - Shows the active coin supply")
	fmt.Println("  pool                                - Shows the redemption pool balance")
	fmt.Println("  status                              - Shows ledger status and policy parameters")
	fmt.Println("  nonce-used <nonce>                  - Checks whether a voucher nonce was consumed")
	fmt.Println("  receipt <id>                        - Shows a redemption receipt")
	fmt.Println("  receipts [redeemer]                 - Lists redemption receipts, optionally by redeemer")
	fmt.Println("  sign-voucher <to> <amount> <nonce> <key_file> - Signs a mint voucher and prints it")
	fmt.Println("  mint <to> <amount> <nonce> <key_file>         - Signs a mint voucher and submits it")
	fmt.Println("  transfer <caller> <coinId> <from> <to>        - Transfers a coin to a merchant")
	fmt.Println("  redeem <redeemer> <coinId> [coinId...]        - Redeems coins for a pool payout")
	fmt.Println("  deposit <depositor> <value>                   - Deposits funds and mints reward coins")
	fmt.Println("  merchant                            - Merchant credential subcommands")
	fmt.Println("  pause <admin> / resume <admin>      - Halts or resumes coin operations")
}
