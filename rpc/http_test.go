package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"littercoin/core"
	"littercoin/crypto"
	"littercoin/native/coin"
	"littercoin/storage"

	jwt "github.com/golang-jwt/jwt/v5"
	"nhooyr.io/websocket"
)

const (
	testAuthToken = "test-rpc-token"
	testJWTSecret = "test-jwt-secret"
	testJWTIssuer = "littercoin-ops"
)

type rpcFixture struct {
	server   *httptest.Server
	ledger   *core.Ledger
	adminKey *crypto.PrivateKey
	admin    [20]byte
	oracle   *coin.ManualOracle
	now      int64
}

func newRPCFixture(t *testing.T) *rpcFixture {
	return newRPCFixtureConfig(t, ServerConfig{
		AuthToken:      testAuthToken,
		AdminJWTSecret: testJWTSecret,
		AdminJWTIssuer: testJWTIssuer,
		RatePerMinute:  6000,
		RateBurst:      100,
	})
}

func newRPCFixtureConfig(t *testing.T, cfg ServerConfig) *rpcFixture {
	t.Helper()
	adminKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate admin key: %v", err)
	}
	admin := adminKey.PubKey().Address().Bytes()
	ledger := core.NewLedger(storage.NewMemDB())
	now := int64(1_700_000_000)
	ledger.SetNowFunc(func() int64 { return now })
	oracle := coin.NewManualOracle()
	ledger.SetOracle(oracle)
	if err := ledger.Bootstrap(admin, coin.DefaultParams()); err != nil {
		t.Fatalf("bootstrap ledger: %v", err)
	}
	server := httptest.NewServer(NewServer(ledger, cfg).Router())
	t.Cleanup(server.Close)
	return &rpcFixture{
		server:   server,
		ledger:   ledger,
		adminKey: adminKey,
		admin:    admin,
		oracle:   oracle,
		now:      now,
	}
}

type rpcResult struct {
	status int
	resp   RPCResponse
}

func (fix *rpcFixture) call(t *testing.T, method string, params []interface{}, bearer string) rpcResult {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, fix.server.URL, bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := fix.server.Client().Do(req)
	if err != nil {
		t.Fatalf("call %s: %v", method, err)
	}
	defer resp.Body.Close()
	var decoded RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s response: %v", method, err)
	}
	return rpcResult{status: resp.StatusCode, resp: decoded}
}

func (fix *rpcFixture) post(t *testing.T, body string) rpcResult {
	t.Helper()
	resp, err := fix.server.Client().Post(fix.server.URL, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var decoded RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResult{status: resp.StatusCode, resp: decoded}
}

func decodeResult(t *testing.T, res rpcResult, out interface{}) {
	t.Helper()
	if res.resp.Error != nil {
		t.Fatalf("unexpected RPC error: %+v", res.resp.Error)
	}
	encoded, err := json.Marshal(res.resp.Result)
	if err != nil {
		t.Fatalf("re-encode result: %v", err)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func (fix *rpcFixture) signedVoucherParams(t *testing.T, beneficiary [20]byte, amount uint64, nonce string) (coin.MintVoucher, string) {
	t.Helper()
	voucher := coin.MintVoucher{
		Domain:      coin.MintVoucherDomainV1,
		ChainID:     fix.ledger.Params().ChainID,
		Beneficiary: beneficiary,
		Amount:      amount,
		Nonce:       nonce,
		Expiry:      fix.now + 3600,
	}
	sig, err := voucher.Sign(fix.adminKey)
	if err != nil {
		t.Fatalf("sign voucher: %v", err)
	}
	return voucher, "0x" + hex.EncodeToString(sig)
}

func (fix *rpcFixture) mintCoins(t *testing.T, beneficiary [20]byte, amount uint64, nonce string) []uint64 {
	t.Helper()
	voucher, sigHex := fix.signedVoucherParams(t, beneficiary, amount, nonce)
	res := fix.call(t, "coin_mint", []interface{}{voucher, sigHex}, testAuthToken)
	var result mintResultJSON
	decodeResult(t, res, &result)
	return result.CoinIDs
}

func (fix *rpcFixture) setPrice(t *testing.T, price string) {
	t.Helper()
	if err := fix.oracle.SetDecimal(price, 8, time.Unix(fix.now, 0)); err != nil {
		t.Fatalf("set price: %v", err)
	}
}

func (fix *rpcFixture) adminJWT(t *testing.T, scope string) string {
	return signJWT(t, testJWTSecret, testJWTIssuer, scope)
}

func signJWT(t *testing.T, secret, issuer, scope string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   issuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return signed
}

func testAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func TestRPCCoinLifecycle(t *testing.T) {
	fix := newRPCFixture(t)
	citizen := testAddr(0x11)
	shop := testAddr(0x22)

	ids := fix.mintCoins(t, citizen, 3, "lifecycle-1")
	if len(ids) != 3 {
		t.Fatalf("expected 3 coins, got %d", len(ids))
	}

	res := fix.call(t, "merchant_mint", []interface{}{map[string]interface{}{
		"caller":    addressString(fix.admin),
		"holder":    addressString(shop),
		"expiresAt": fix.now + 30*86400,
	}}, fix.adminJWT(t, "admin"))
	var cred credentialJSON
	decodeResult(t, res, &cred)
	if cred.ID != 1 || cred.Status != "active" || cred.Holder != addressString(shop) {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	res = fix.call(t, "coin_transfer", []interface{}{map[string]interface{}{
		"caller": addressString(citizen),
		"coinId": ids[0],
		"from":   addressString(citizen),
		"to":     addressString(shop),
	}}, testAuthToken)
	var moved coinJSON
	decodeResult(t, res, &moved)
	if moved.Status != "transferred" || moved.Owner != addressString(shop) {
		t.Fatalf("unexpected coin after transfer: %+v", moved)
	}

	fix.setPrice(t, "0.50")
	res = fix.call(t, "coin_deposit", []interface{}{map[string]interface{}{
		"caller": addressString(citizen),
		"value":  "500",
	}}, testAuthToken)
	var deposit depositJSON
	decodeResult(t, res, &deposit)
	if deposit.Reward != "250" || deposit.Pool != "500" {
		t.Fatalf("unexpected deposit result: %+v", deposit)
	}

	res = fix.call(t, "coin_redeem", []interface{}{map[string]interface{}{
		"caller":  addressString(shop),
		"coinIds": []uint64{ids[0]},
	}}, testAuthToken)
	var receipt receiptJSON
	decodeResult(t, res, &receipt)
	if receipt.Payout != "166" {
		t.Fatalf("expected payout 166, got %s", receipt.Payout)
	}
	if receipt.SupplyBefore != 3 || receipt.SupplyAfter != 2 {
		t.Fatalf("unexpected supply counts: %+v", receipt)
	}
	if receipt.PoolBefore != "500" || receipt.PoolAfter != "334" {
		t.Fatalf("unexpected pool totals: %+v", receipt)
	}

	res = fix.call(t, "coin_get", []interface{}{map[string]interface{}{"id": ids[0]}}, "")
	var burned coinJSON
	decodeResult(t, res, &burned)
	if burned.Status != "burned" {
		t.Fatalf("expected burned coin, got %+v", burned)
	}

	res = fix.call(t, "coin_listByOwner", []interface{}{map[string]interface{}{
		"owner": addressString(citizen),
	}}, "")
	var owned []coinJSON
	decodeResult(t, res, &owned)
	if len(owned) != 2 {
		t.Fatalf("expected citizen to keep 2 coins, got %d", len(owned))
	}

	res = fix.call(t, "coin_balance", []interface{}{map[string]interface{}{
		"address": addressString(shop),
	}}, "")
	var balance map[string]string
	decodeResult(t, res, &balance)
	if balance["balance"] != "166" {
		t.Fatalf("expected payout credited, got %+v", balance)
	}

	res = fix.call(t, "coin_rewardBalance", []interface{}{map[string]interface{}{
		"address": addressString(citizen),
	}}, "")
	var rewardsOut map[string]string
	decodeResult(t, res, &rewardsOut)
	if rewardsOut["rewards"] != "250" {
		t.Fatalf("expected rewards 250, got %+v", rewardsOut)
	}

	res = fix.call(t, "coin_nonceUsed", []interface{}{map[string]interface{}{"nonce": "lifecycle-1"}}, "")
	var used map[string]bool
	decodeResult(t, res, &used)
	if !used["used"] {
		t.Fatalf("expected nonce to be consumed")
	}

	res = fix.call(t, "ledger_status", nil, "")
	var status statusJSON
	decodeResult(t, res, &status)
	if status.Supply != 2 || status.Pool != "334" || status.Paused {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Admin != addressString(fix.admin) {
		t.Fatalf("expected admin %s, got %s", addressString(fix.admin), status.Admin)
	}

	res = fix.call(t, "coin_listReceipts", nil, "")
	var page struct {
		Receipts   []receiptJSON `json:"receipts"`
		NextCursor string        `json:"nextCursor"`
	}
	decodeResult(t, res, &page)
	if len(page.Receipts) != 1 || page.NextCursor != "" {
		t.Fatalf("unexpected receipts page: %+v", page)
	}
	if page.Receipts[0].ID != receipt.ID {
		t.Fatalf("receipt id mismatch: %s vs %s", page.Receipts[0].ID, receipt.ID)
	}
}

func TestRPCMintStringVoucherParam(t *testing.T) {
	fix := newRPCFixture(t)
	citizen := testAddr(0x71)
	voucher, sigHex := fix.signedVoucherParams(t, citizen, 2, "string-1")
	encoded, err := json.Marshal(voucher)
	if err != nil {
		t.Fatalf("marshal voucher: %v", err)
	}
	res := fix.call(t, "coin_mint", []interface{}{string(encoded), sigHex}, testAuthToken)
	var result mintResultJSON
	decodeResult(t, res, &result)
	if len(result.CoinIDs) != 2 || result.Beneficiary != addressString(citizen) {
		t.Fatalf("unexpected mint result: %+v", result)
	}
	if result.Nonce != "string-1" {
		t.Fatalf("unexpected nonce: %s", result.Nonce)
	}
}

func TestRPCAuthTiers(t *testing.T) {
	fix := newRPCFixture(t)
	citizen := testAddr(0x31)
	voucher, sigHex := fix.signedVoucherParams(t, citizen, 1, "auth-1")

	res := fix.call(t, "coin_mint", []interface{}{voucher, sigHex}, "")
	if res.status != http.StatusUnauthorized || res.resp.Error == nil || res.resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got status %d error %+v", res.status, res.resp.Error)
	}

	res = fix.call(t, "coin_mint", []interface{}{voucher, sigHex}, "wrong-token")
	if res.resp.Error == nil || res.resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized with wrong token, got %+v", res.resp.Error)
	}

	merchantParams := []interface{}{map[string]interface{}{
		"caller":    addressString(fix.admin),
		"holder":    addressString(testAddr(0x32)),
		"expiresAt": fix.now + 3600,
	}}

	res = fix.call(t, "merchant_mint", merchantParams, testAuthToken)
	if res.resp.Error == nil || res.resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected JWT requirement, got %+v", res.resp.Error)
	}

	res = fix.call(t, "merchant_mint", merchantParams, signJWT(t, testJWTSecret, testJWTIssuer, "refunds"))
	if res.resp.Error == nil || res.resp.Error.Message != "insufficient scope" {
		t.Fatalf("expected scope rejection, got %+v", res.resp.Error)
	}

	res = fix.call(t, "merchant_mint", merchantParams, signJWT(t, testJWTSecret, "other-issuer", "admin"))
	if res.resp.Error == nil || res.resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected issuer rejection, got %+v", res.resp.Error)
	}

	res = fix.call(t, "merchant_mint", merchantParams, fix.adminJWT(t, "admin"))
	var cred credentialJSON
	decodeResult(t, res, &cred)
	if cred.ID != 1 {
		t.Fatalf("unexpected credential: %+v", cred)
	}

	res = fix.call(t, "coin_supply", nil, "")
	var supply map[string]uint64
	decodeResult(t, res, &supply)
	if supply["supply"] != 0 {
		t.Fatalf("expected zero supply, got %+v", supply)
	}
}

func TestRPCErrorCodeMapping(t *testing.T) {
	fix := newRPCFixture(t)
	citizen := testAddr(0x41)
	stranger := testAddr(0x42)

	res := fix.call(t, "bogus_method", nil, "")
	if res.resp.Error == nil || res.resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", res.resp.Error)
	}

	res = fix.call(t, "coin_get", []interface{}{map[string]interface{}{"id": 999}}, "")
	if res.status != http.StatusNotFound || res.resp.Error == nil || res.resp.Error.Code != codeNotFound {
		t.Fatalf("expected not found, got status %d error %+v", res.status, res.resp.Error)
	}

	ids := fix.mintCoins(t, citizen, 2, "codes-1")

	voucher, sigHex := fix.signedVoucherParams(t, citizen, 2, "codes-1")
	res = fix.call(t, "coin_mint", []interface{}{voucher, sigHex}, testAuthToken)
	if res.status != http.StatusConflict || res.resp.Error == nil || res.resp.Error.Code != codeNonceReplay {
		t.Fatalf("expected nonce replay, got status %d error %+v", res.status, res.resp.Error)
	}

	res = fix.call(t, "coin_transfer", []interface{}{map[string]interface{}{
		"caller": addressString(citizen),
		"coinId": ids[0],
		"from":   addressString(citizen),
		"to":     addressString(stranger),
	}}, testAuthToken)
	if res.status != http.StatusForbidden || res.resp.Error == nil || res.resp.Error.Code != codeEligibility {
		t.Fatalf("expected eligibility rejection, got status %d error %+v", res.status, res.resp.Error)
	}

	res = fix.call(t, "ledger_pause", []interface{}{map[string]interface{}{
		"caller": addressString(fix.admin),
	}}, fix.adminJWT(t, "admin"))
	var pauseState map[string]bool
	decodeResult(t, res, &pauseState)
	if !pauseState["paused"] {
		t.Fatalf("expected pause to engage, got %+v", pauseState)
	}

	pausedVoucher, pausedSig := fix.signedVoucherParams(t, citizen, 1, "codes-2")
	res = fix.call(t, "coin_mint", []interface{}{pausedVoucher, pausedSig}, testAuthToken)
	if res.status != http.StatusServiceUnavailable || res.resp.Error == nil || res.resp.Error.Code != codePaused {
		t.Fatalf("expected paused rejection, got status %d error %+v", res.status, res.resp.Error)
	}

	res = fix.call(t, "ledger_resume", []interface{}{map[string]interface{}{
		"caller": addressString(fix.admin),
	}}, fix.adminJWT(t, "admin"))
	decodeResult(t, res, &pauseState)
	if pauseState["paused"] {
		t.Fatalf("expected resume, got %+v", pauseState)
	}
}

func TestRPCRequestValidation(t *testing.T) {
	fix := newRPCFixture(t)

	res := fix.post(t, "")
	if res.resp.Error == nil || res.resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request for empty body, got %+v", res.resp.Error)
	}

	res = fix.post(t, "{not json")
	if res.resp.Error == nil || res.resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", res.resp.Error)
	}

	res = fix.post(t, `{"jsonrpc":"1.0","method":"coin_supply","id":1}`)
	if res.resp.Error == nil || res.resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected version rejection, got %+v", res.resp.Error)
	}

	res = fix.post(t, `{"jsonrpc":"2.0","id":1}`)
	if res.resp.Error == nil || res.resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected missing method rejection, got %+v", res.resp.Error)
	}
}

func TestRPCRateLimitThrottles(t *testing.T) {
	fix := newRPCFixtureConfig(t, ServerConfig{
		AuthToken:      testAuthToken,
		AdminJWTSecret: testJWTSecret,
		AdminJWTIssuer: testJWTIssuer,
		RatePerMinute:  0.01,
		RateBurst:      1,
	})
	citizen := testAddr(0x51)

	fix.mintCoins(t, citizen, 1, "throttle-1")

	voucher, sigHex := fix.signedVoucherParams(t, citizen, 1, "throttle-2")
	res := fix.call(t, "coin_mint", []interface{}{voucher, sigHex}, testAuthToken)
	if res.status != http.StatusTooManyRequests || res.resp.Error == nil || res.resp.Error.Code != codeRateLimited {
		t.Fatalf("expected throttle, got status %d error %+v", res.status, res.resp.Error)
	}
}

func TestRPCEventStreamWebsocket(t *testing.T) {
	fix := newRPCFixture(t)
	citizen := testAddr(0x61)
	fix.mintCoins(t, citizen, 1, "stream-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, fix.server.URL+"/ws/events", nil)
	if err != nil {
		t.Fatalf("dial events stream: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read backlog: %v", err)
	}
	var replay eventUpdatePayload
	if err := json.Unmarshal(data, &replay); err != nil {
		t.Fatalf("decode backlog update: %v", err)
	}
	if replay.Type != "coin.minted" || replay.Sequence != 1 {
		t.Fatalf("unexpected backlog update: %+v", replay)
	}

	fix.mintCoins(t, citizen, 1, "stream-2")

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read live update: %v", err)
	}
	var live eventUpdatePayload
	if err := json.Unmarshal(data, &live); err != nil {
		t.Fatalf("decode live update: %v", err)
	}
	if live.Type != "coin.minted" || live.Sequence != 2 {
		t.Fatalf("unexpected live update: %+v", live)
	}
}
