package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/glinharesb/cxemu/internal/audit"
	"github.com/glinharesb/cxemu/internal/hd"
	"github.com/glinharesb/cxemu/internal/hsm"
	"github.com/glinharesb/cxemu/internal/interceptor"
	"github.com/glinharesb/cxemu/internal/keystore"
)

const (
	testSeed = "000102030405060708090a0b0c0d0e0f"
	// EIP-2333 test case 0.
	blsSeed  = "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04"
)

type harness struct {
	client *Client
	audit  *audit.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithSeed(t, testSeed)
}

func newHarnessWithSeed(t *testing.T, seedHex string) *harness {
	t.Helper()
	seed, _ := hex.DecodeString(seedHex)
	logger := audit.NewLogger(256, nil)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.RecoveryUnary(), interceptor.ErrorsUnary()),
		grpc.ChainStreamInterceptor(interceptor.RecoveryStream(), interceptor.ErrorsStream()),
	)
	Register(srv, New(keystore.NewMemoryStore(), hsm.NewSoftwareHSM(seed, nil), logger))

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
		logger.Close()
	})
	return &harness{client: NewClient(conn), audit: logger}
}

func (h *harness) call(t *testing.T, method string, fields map[string]any) *structpb.Struct {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := h.client.Call(ctx, method, fields)
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return out
}

func (h *harness) callCode(t *testing.T, method string, fields map[string]any) codes.Code {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := h.client.Call(ctx, method, fields)
	return status.Code(err)
}

func str(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func TestDeriveKeyMatchesBIP32(t *testing.T) {
	h := newHarness(t)
	derived := h.call(t, "DeriveKey", map[string]any{
		"curve":  "secp256k1",
		"path":   "m/0'/1/2'",
		"labels": map[string]any{"app": "test"},
	})
	if str(derived, "scheme") != "DERIVED" || str(derived, "path") != "m/0'/1/2'" {
		t.Fatalf("unexpected entry: %v", derived)
	}

	pub := h.call(t, "GetPublicKey", map[string]any{"key_id": str(derived, "key_id")})
	if got := str(pub, "compressed"); got != "0357bfe1e341d01c69fe5654309956cbea516822fba8a601743a012a7896ee8dc2" {
		t.Fatalf("compressed public key: got %s", got)
	}
	if str(pub, "public_key") != str(derived, "public_key") {
		t.Fatal("public key differs between DeriveKey and GetPublicKey")
	}
}

func TestSignVerifyECDSA(t *testing.T) {
	h := newHarness(t)
	key := h.call(t, "DeriveKey", map[string]any{"curve": "secp256r1", "path": "m/44'/0'/0'/0/0"})
	keyID := str(key, "key_id")
	digest := sha256.Sum256([]byte("sample"))

	sig := h.call(t, "Sign", map[string]any{"key_id": keyID, "digest": hex.EncodeToString(digest[:])})
	again := h.call(t, "Sign", map[string]any{"key_id": keyID, "message": hex.EncodeToString([]byte("sample"))})
	if str(sig, "signature") != str(again, "signature") {
		t.Fatal("rfc6979 signature over digest and message differ")
	}

	valid := h.call(t, "Verify", map[string]any{
		"curve":      "secp256r1",
		"public_key": str(key, "public_key"),
		"digest":     hex.EncodeToString(digest[:]),
		"signature":  str(sig, "signature"),
	})
	if !valid.GetFields()["valid"].GetBoolValue() {
		t.Fatal("signature did not verify")
	}

	other := sha256.Sum256([]byte("other"))
	invalid := h.call(t, "Verify", map[string]any{
		"key_id":    keyID,
		"digest":    hex.EncodeToString(other[:]),
		"signature": str(sig, "signature"),
	})
	if invalid.GetFields()["valid"].GetBoolValue() {
		t.Fatal("signature verified over the wrong digest")
	}
}

func TestSignEdDSASLIP10(t *testing.T) {
	h := newHarness(t)
	key := h.call(t, "DeriveKey", map[string]any{"curve": "ed25519", "path": "m/44'/1'", "mode": hd.ModeEd25519SLIP10.String()})
	if str(key, "scheme") != "SLIP10" {
		t.Fatalf("scheme: got %s", str(key, "scheme"))
	}
	msg := hex.EncodeToString([]byte("hello"))
	sig := h.call(t, "Sign", map[string]any{"key_id": str(key, "key_id"), "message": msg})
	if len(str(sig, "signature")) != 128 {
		t.Fatalf("signature length: %d", len(str(sig, "signature")))
	}
	valid := h.call(t, "Verify", map[string]any{"key_id": str(key, "key_id"), "message": msg, "signature": str(sig, "signature")})
	if !valid.GetFields()["valid"].GetBoolValue() {
		t.Fatal("eddsa signature did not verify")
	}

	if code := h.callCode(t, "DeriveKey", map[string]any{"curve": "ed25519", "path": "m/0", "mode": "ed25519-slip10"}); code != codes.InvalidArgument {
		t.Fatalf("normal slip10 level: got %v", code)
	}
	if code := h.callCode(t, "Sign", map[string]any{"key_id": str(key, "key_id"), "message": msg, "hash": "sha256"}); code != codes.InvalidArgument {
		t.Fatalf("eddsa with sha256: got %v", code)
	}
}

func TestBatchSign(t *testing.T) {
	h := newHarness(t)
	key := h.call(t, "GenerateKey", map[string]any{"curve": "secp256k1"})
	items := []any{}
	for _, m := range []string{"a", "b", "c", "d"} {
		d := sha256.Sum256([]byte(m))
		items = append(items, hex.EncodeToString(d[:]))
	}

	out := h.call(t, "BatchSign", map[string]any{"key_id": str(key, "key_id"), "items": items})
	results := out.GetFields()["results"].GetListValue().GetValues()
	if len(results) != len(items) {
		t.Fatalf("results: got %d, want %d", len(results), len(items))
	}
	for i, r := range results {
		fields := r.GetStructValue()
		v := h.call(t, "Verify", map[string]any{"key_id": str(key, "key_id"), "digest": items[i], "signature": str(fields, "signature")})
		if !v.GetFields()["valid"].GetBoolValue() {
			t.Fatalf("item %d did not verify", i)
		}
	}

	h.call(t, "DeactivateKey", map[string]any{"key_id": str(key, "key_id")})
	if code := h.callCode(t, "BatchSign", map[string]any{"key_id": str(key, "key_id"), "items": items}); code != codes.FailedPrecondition {
		t.Fatalf("batch with inactive key: got %v", code)
	}
}

func TestAgree(t *testing.T) {
	h := newHarness(t)
	a := h.call(t, "GenerateKey", map[string]any{"curve": "curve25519"})
	b := h.call(t, "GenerateKey", map[string]any{"curve": "curve25519"})
	ab := h.call(t, "Agree", map[string]any{"key_id": str(a, "key_id"), "peer": str(b, "public_key")})
	ba := h.call(t, "Agree", map[string]any{"key_id": str(b, "key_id"), "peer": str(a, "public_key")})
	if str(ab, "secret") == "" || str(ab, "secret") != str(ba, "secret") {
		t.Fatalf("secrets differ: %s vs %s", str(ab, "secret"), str(ba, "secret"))
	}
	if code := h.callCode(t, "Agree", map[string]any{"key_id": str(a, "key_id"), "peer": str(b, "public_key"), "mode": "point"}); code != codes.InvalidArgument {
		t.Fatalf("montgomery point mode: got %v", code)
	}
}

func TestKeyLifecycle(t *testing.T) {
	h := newHarness(t)
	key := h.call(t, "ImportKey", map[string]any{
		"curve":       "secp256k1",
		"private_key": "0000000000000000000000000000000000000000000000000000000000000001",
	})
	keyID := str(key, "key_id")
	if str(key, "public_key") != "0479be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8" {
		t.Fatalf("generator public key: got %s", str(key, "public_key"))
	}

	h.call(t, "DeactivateKey", map[string]any{"key_id": keyID})
	if code := h.callCode(t, "Sign", map[string]any{"key_id": keyID, "digest": hex.EncodeToString(make([]byte, 32))}); code != codes.FailedPrecondition {
		t.Fatalf("sign with inactive key: got %v", code)
	}

	active := h.call(t, "ListKeys", map[string]any{"status": "ACTIVE"})
	if n := len(active.GetFields()["keys"].GetListValue().GetValues()); n != 0 {
		t.Fatalf("active keys: got %d", n)
	}
	all := h.call(t, "ListKeys", nil)
	if n := len(all.GetFields()["keys"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("all keys: got %d", n)
	}

	h.call(t, "DeleteKey", map[string]any{"key_id": keyID})
	if code := h.callCode(t, "GetPublicKey", map[string]any{"key_id": keyID}); code != codes.NotFound {
		t.Fatalf("deleted key: got %v", code)
	}
}

func TestRejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		method string
		fields map[string]any
	}{
		{"DeriveKey", map[string]any{"curve": "secp999k1", "path": "m"}},
		{"DeriveKey", map[string]any{"curve": "secp256k1", "path": "44'/0'"}},
		{"DeriveKey", map[string]any{"curve": "secp256k1"}},
		{"ImportKey", map[string]any{"curve": "secp256k1", "private_key": "zz"}},
		{"ImportKey", map[string]any{"curve": "secp256k1", "private_key": "01"}},
		{"Verify", map[string]any{"curve": "secp256k1", "public_key": "05", "digest": "00", "signature": "00"}},
		{"DeriveSymmetric", map[string]any{}},
		{"DeriveBLS", map[string]any{"path": "m/x"}},
	}
	for _, tc := range cases {
		if code := h.callCode(t, tc.method, tc.fields); code != codes.InvalidArgument {
			t.Errorf("%s %v: got %v, want InvalidArgument", tc.method, tc.fields, code)
		}
	}
}

func TestDeriveSymmetric(t *testing.T) {
	h := newHarness(t)
	seed, _ := hex.DecodeString(testSeed)

	sym := h.call(t, "DeriveSymmetric", map[string]any{"label": "SLIP-0021"})
	want, err := hd.SLIP21(seed, []byte("\x00SLIP-0021"))
	if err != nil {
		t.Fatalf("slip21: %v", err)
	}
	if str(sym, "key") != hex.EncodeToString(want) {
		t.Fatalf("slip21 key: got %s", str(sym, "key"))
	}
}

func TestDeriveBLS(t *testing.T) {
	h := newHarnessWithSeed(t, blsSeed)
	bls := h.call(t, "DeriveBLS", map[string]any{"path": "m/0"})
	if got := str(bls, "secret_key"); got != "2d18bd6c14e6d15bf8b5085c9b74f3daae3b03cc2014770a599d8c1539e50f8e" {
		t.Fatalf("bls secret key: got %s", got)
	}
	if len(str(bls, "public_key")) != 2*97 {
		t.Fatalf("bls public key length: %d", len(str(bls, "public_key")))
	}

	key := h.call(t, "DeriveKey", map[string]any{"curve": "bls12-381-g1", "path": "m/0"})
	if str(key, "public_key") != str(bls, "public_key") {
		t.Fatalf("DeriveKey and DeriveBLS disagree: %s vs %s", str(key, "public_key"), str(bls, "public_key"))
	}
	digest := sha256.Sum256([]byte("bls"))
	sig := h.call(t, "Sign", map[string]any{"key_id": str(key, "key_id"), "digest": hex.EncodeToString(digest[:])})
	valid := h.call(t, "Verify", map[string]any{"key_id": str(key, "key_id"), "digest": hex.EncodeToString(digest[:]), "signature": str(sig, "signature")})
	if !valid.GetFields()["valid"].GetBoolValue() {
		t.Fatal("bls12-381 ecdsa signature did not verify")
	}

	short := newHarness(t)
	if code := short.callCode(t, "DeriveBLS", map[string]any{"path": "m/0"}); code != codes.InvalidArgument {
		t.Fatalf("short seed: got %v", code)
	}
}

func TestAuditTrail(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := h.client.StreamAudit(ctx, map[string]any{"operation": "GenerateKey"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if _, err := stream.Header(); err != nil {
		t.Fatalf("header: %v", err)
	}

	key := h.call(t, "GenerateKey", map[string]any{"curve": "secp384r1"})
	h.callCode(t, "GenerateKey", map[string]any{"curve": "nope"})

	got, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if str(got, "key_id") != str(key, "key_id") || got.GetFields()["code"].GetNumberValue() != 0 {
		t.Fatalf("first streamed entry: %v", got)
	}
	failed, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if failed.GetFields()["code"].GetNumberValue() == 0 || str(failed, "error") == "" {
		t.Fatalf("failed call should carry a status word: %v", failed)
	}

	q := h.call(t, "QueryAudit", map[string]any{"key_id": str(key, "key_id")})
	entries := q.GetFields()["entries"].GetListValue().GetValues()
	if len(entries) != 1 || str(entries[0].GetStructValue(), "curve") != "secp384r1" {
		t.Fatalf("query: %v", entries)
	}
}

func TestRecover(t *testing.T) {
	h := newHarness(t)
	key := h.call(t, "DeriveKey", map[string]any{"curve": "secp256k1", "path": "m/44'/60'/0'/0/0"})
	for _, m := range []string{"one", "two", "three"} {
		digest := sha256.Sum256([]byte(m))
		sig := h.call(t, "Sign", map[string]any{"key_id": str(key, "key_id"), "digest": hex.EncodeToString(digest[:])})
		rec := h.call(t, "Recover", map[string]any{
			"curve":     "secp256k1",
			"digest":    hex.EncodeToString(digest[:]),
			"signature": str(sig, "signature"),
			"info":      sig.GetFields()["info"].GetNumberValue(),
		})
		if str(rec, "public_key") != str(key, "public_key") {
			t.Fatalf("%s: recovered %s, want %s", m, str(rec, "public_key"), str(key, "public_key"))
		}
	}

	bls := h.call(t, "GenerateKey", map[string]any{"curve": "bls12-381-g1"})
	digest := hex.EncodeToString(make([]byte, 32))
	sig := h.call(t, "Sign", map[string]any{"key_id": str(bls, "key_id"), "digest": digest})
	fields := map[string]any{"curve": "bls12-381-g1", "digest": digest, "signature": str(sig, "signature"), "info": sig.GetFields()["info"].GetNumberValue()}
	if code := h.callCode(t, "Recover", fields); code != codes.InvalidArgument {
		t.Fatalf("bls12-381 recovery: got %v", code)
	}
	if code := h.callCode(t, "Recover", map[string]any{"curve": "ed25519", "digest": digest, "signature": "00"}); code != codes.InvalidArgument {
		t.Fatalf("edwards recovery: got %v", code)
	}
}

func TestDeviceKeyStructures(t *testing.T) {
	h := newHarness(t)
	// m/0'/1/2' as big-endian u32 values.
	key := h.call(t, "DeriveKey", map[string]any{"curve": "secp256k1", "path_abi": "800000000000000180000002"})
	if str(key, "path") != "m/0'/1/2'" || str(key, "path_abi") != "800000000000000180000002" {
		t.Fatalf("path: got %s (%s)", str(key, "path"), str(key, "path_abi"))
	}
	pub := h.call(t, "GetPublicKey", map[string]any{"key_id": str(key, "key_id")})
	if got := str(pub, "compressed"); got != "0357bfe1e341d01c69fe5654309956cbea516822fba8a601743a012a7896ee8dc2" {
		t.Fatalf("compressed public key: got %s", got)
	}
	if len(str(pub, "public_key_abi")) != 2*hsm.PublicKeySize() {
		t.Fatalf("public key structure: %d hex chars", len(str(pub, "public_key_abi")))
	}

	exported := h.call(t, "ExportKey", map[string]any{"key_id": str(key, "key_id")})
	if len(str(exported, "private_key_abi")) != 2*int(exported.GetFields()["size"].GetNumberValue()) {
		t.Fatalf("private key structure size mismatch: %v", exported)
	}
	imported := h.call(t, "ImportKey", map[string]any{"private_key_abi": str(exported, "private_key_abi")})
	if str(imported, "public_key") != str(key, "public_key") || str(imported, "curve") != "secp256k1" {
		t.Fatalf("reimported key: %v", imported)
	}

	digest := hex.EncodeToString(make([]byte, 32))
	sig := h.call(t, "Sign", map[string]any{"key_id": str(key, "key_id"), "digest": digest})
	valid := h.call(t, "Verify", map[string]any{"public_key_abi": str(pub, "public_key_abi"), "digest": digest, "signature": str(sig, "signature")})
	if !valid.GetFields()["valid"].GetBoolValue() {
		t.Fatal("verify against the public key structure failed")
	}

	bad := []map[string]any{
		{"key_id": str(key, "key_id"), "digest": digest, "buffer_size": 8},
		{"curve": "secp256k1", "path_abi": "000000"},
		{"private_key_abi": "00"},
		{"public_key_abi": "00", "digest": digest, "signature": str(sig, "signature")},
	}
	for i, method := range []string{"Sign", "DeriveKey", "ImportKey", "Verify"} {
		if code := h.callCode(t, method, bad[i]); code != codes.InvalidArgument {
			t.Errorf("%s %v: got %v, want InvalidArgument", method, bad[i], code)
		}
	}
}

func TestMath(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		fields map[string]any
		want   string
	}{
		{map[string]any{"op": "powm", "a": "02", "b": "05", "m": "07"}, "04"},
		{map[string]any{"op": "invm", "a": "03", "m": "07"}, "05"},
		{map[string]any{"op": "multm", "a": "03", "b": "05", "m": "0007"}, "0001"},
		{map[string]any{"op": "mult", "a": "0f", "b": "11"}, "00ff"},
	}
	for _, tc := range cases {
		out := h.call(t, "Math", tc.fields)
		if got := str(out, "result"); got != tc.want {
			t.Errorf("%v: got %s, want %s", tc.fields, got, tc.want)
		}
	}

	sum := h.call(t, "Math", map[string]any{"op": "add", "a": "ff", "b": "01"})
	if str(sum, "result") != "00" || !sum.GetFields()["carry"].GetBoolValue() {
		t.Fatalf("add with carry: %v", sum)
	}
	cmp := h.call(t, "Math", map[string]any{"op": "cmp", "a": "0100", "b": "ff"})
	if cmp.GetFields()["cmp"].GetNumberValue() != 1 {
		t.Fatalf("cmp: %v", cmp)
	}
	if code := h.callCode(t, "Math", map[string]any{"op": "divm", "a": "01"}); code != codes.InvalidArgument {
		t.Fatalf("unknown op: got %v", code)
	}
	if code := h.callCode(t, "Math", map[string]any{"op": "invm", "a": "00", "m": "07"}); code != codes.Internal {
		t.Fatalf("inverse of zero: got %v", code)
	}
}

func TestListKeysFilters(t *testing.T) {
	h := newHarness(t)
	h.call(t, "GenerateKey", map[string]any{"curve": "secp256k1", "labels": map[string]any{"env": "prod"}})
	h.call(t, "GenerateKey", map[string]any{"curve": "secp256r1", "labels": map[string]any{"env": "dev"}})
	h.call(t, "GenerateKey", map[string]any{"curve": "secp256r1"})

	count := func(fields map[string]any) int {
		out := h.call(t, "ListKeys", fields)
		return len(out.GetFields()["keys"].GetListValue().GetValues())
	}
	if n := count(map[string]any{"curve": "secp256r1"}); n != 2 {
		t.Fatalf("secp256r1 keys: got %d", n)
	}
	if n := count(map[string]any{"labels": map[string]any{"env": "prod"}}); n != 1 {
		t.Fatalf("prod keys: got %d", n)
	}
	if n := count(map[string]any{"curve": "secp256r1", "labels": map[string]any{"env": "prod"}}); n != 0 {
		t.Fatalf("secp256r1 prod keys: got %d", n)
	}
	if code := h.callCode(t, "ListKeys", map[string]any{"curve": "nope"}); code != codes.InvalidArgument {
		t.Fatalf("unknown curve filter: got %v", code)
	}
}
