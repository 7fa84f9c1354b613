package payos

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]Status{
		"PAID":      StatusPaid,
		"success":   StatusPaid,
		"SUCCEEDED": StatusPaid,
		"completed": StatusPaid,
		"CANCELED":  StatusCancelled,
		"CANCELLED": StatusCancelled,
		"FAILED":    StatusError,
		"ERROR":     StatusError,
		"EXPIRED":   StatusExpired,
		"REFUNDED":  StatusRefunded,
		"PENDING":   StatusProcessing,
		"whatever":  StatusProcessing,
		"":          StatusProcessing,
	}
	for in, want := range cases {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseFlat(t *testing.T) {
	p, err := Parse([]byte(`{"orderCode":"123","status":"PAID","reference":"TOPUP-ABC","amount":50000,"transactionId":"FT1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*FlatPayload); !ok {
		t.Fatalf("expected flat payload, got %T", p)
	}
	ev := p.Event()
	if !ev.HasOrderCode || ev.OrderCode != 123 {
		t.Fatalf("order code: %+v", ev)
	}
	if ev.Reference != "TOPUP-ABC" || ev.Status != StatusPaid || ev.BankReference != "FT1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.Amount.Valid || ev.Amount.Decimal.IntPart() != 50000 {
		t.Fatalf("amount: %+v", ev.Amount)
	}
}

func TestParseNested(t *testing.T) {
	body := `{"code":"00","desc":"success","success":true,"data":{"orderCode":77,"amount":10000,"reference":"BANK-9","paymentLinkId":"pl_1","transactionDateTime":"2024-01-02 10:00:00"},"signature":"abc"}`
	p, err := Parse([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	ev := p.Event()
	if ev.Status != StatusPaid || ev.OrderCode != 77 || ev.Reference != "77" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.BankReference != "BANK-9" || ev.PaymentID != "pl_1" || !ev.Signed {
		t.Fatalf("unexpected event: %+v", ev)
	}

	p, _ = Parse([]byte(`{"code":"01","success":false,"data":{"orderCode":77}}`))
	if got := p.Event().Status; got != StatusError {
		t.Fatalf("failed nested payload mapped to %s", got)
	}
	p, _ = Parse([]byte(`{"code":"00","data":{"orderCode":77,"status":"CANCELLED"}}`))
	if got := p.Event().Status; got != StatusCancelled {
		t.Fatalf("explicit status ignored: %s", got)
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	for _, body := range []string{`[]`, `"x"`, `42`, `not json`, ``} {
		if _, err := Parse([]byte(body)); !errors.Is(err, ErrNotObject) {
			t.Errorf("Parse(%q) err = %v", body, err)
		}
	}
}

func TestPing(t *testing.T) {
	p, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Event().IsPing() {
		t.Fatal("empty object should be a ping")
	}
	p, _ = Parse([]byte(`{"signature":"deadbeef"}`))
	if p.Event().IsPing() {
		t.Fatal("signed payload is not a ping")
	}
	p, _ = Parse([]byte(`{"transactionId":"T1"}`))
	if p.Event().IsPing() {
		t.Fatal("payload with a transaction id is not a ping")
	}
}

func TestVerifyHeaderCanonicalKeepsHTMLCharacters(t *testing.T) {
	s := NewSigner("secret")
	body := []byte(`{ "returnUrl": "https://shop.example/ok?a=1&b=<2>", "orderCode": 7, "status": "PAID" }`)
	canon := []byte(`{"orderCode":7,"returnUrl":"https://shop.example/ok?a=1&b=<2>","status":"PAID"}`)
	p, _ := Parse(body)

	if err := s.Verify(p, body, s.Sign(canon)); err != nil {
		t.Fatalf("canonical signature over unescaped URL rejected: %v", err)
	}
	got, err := canonicalJSON(body)
	if err != nil || string(got) != string(canon) {
		t.Fatalf("canonicalJSON = %s, %v", got, err)
	}
}

func TestVerifyHeader(t *testing.T) {
	s := NewSigner("secret")
	body := []byte(`{ "status": "PAID", "orderCode": 1 }`)
	p, _ := Parse(body)

	if err := s.Verify(p, body, s.Sign(body)); err != nil {
		t.Fatalf("raw body signature rejected: %v", err)
	}
	canon, _ := canonicalJSON(body)
	if err := s.Verify(p, body, s.Sign(canon)); err != nil {
		t.Fatalf("canonical signature rejected: %v", err)
	}
	if err := s.Verify(p, body, "00ff"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if err := s.Verify(p, body, ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	if err := NewSigner("").Verify(p, body, s.Sign(body)); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestVerifyBodySignatureNested(t *testing.T) {
	s := NewSigner("secret")
	data := map[string]any{"orderCode": json.Number("77"), "amount": json.Number("10000"), "description": "TOPUP", "reference": "BANK-9"}
	sig := s.SignFields(data)
	body, _ := json.Marshal(map[string]any{"code": "00", "success": true, "data": data, "signature": sig})

	p, err := Parse(body)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(p, body, ""); err != nil {
		t.Fatalf("valid body signature rejected: %v", err)
	}

	tampered, _ := json.Marshal(map[string]any{"code": "00", "data": map[string]any{"orderCode": 78, "amount": 10000, "description": "TOPUP", "reference": "BANK-9"}, "signature": sig})
	p, _ = Parse(tampered)
	if err := s.Verify(p, tampered, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("tampered payload accepted: %v", err)
	}
}

func TestVerifyBodySignatureFlat(t *testing.T) {
	s := NewSigner("secret")
	sig := s.SignFields(map[string]any{"orderCode": json.Number("5"), "status": "PAID"})
	body := []byte(`{"orderCode":5,"status":"PAID","signature":"` + sig + `"}`)
	p, _ := Parse(body)
	if err := s.Verify(p, body, ""); err != nil {
		t.Fatalf("flat body signature rejected: %v", err)
	}
}

func TestSortedQuery(t *testing.T) {
	got := SortedQuery(map[string]any{"b": "2", "a": json.Number("1"), "c": nil, "d": true})
	if want := "a=1&b=2&c=&d=true"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestClientCreatePaymentLink(t *testing.T) {
	var gotReq PaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/payment-requests" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-client-id") != "cid" || r.Header.Get("x-api-key") != "key" {
			t.Errorf("missing credentials headers")
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotReq)
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"orderCode":9,"amount":50000,"paymentLinkId":"pl_9","checkoutUrl":"https://pay.payos.vn/web/pl_9","qrCode":"000201","status":"PENDING"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ClientID: "cid", APIKey: "key", ChecksumKey: "secret", BaseURL: srv.URL})
	link, err := c.CreatePaymentLink(context.Background(), PaymentRequest{
		OrderCode: 9, Amount: 50000, Description: "TOPUP-X", CancelURL: "http://c", ReturnURL: "http://r",
	})
	if err != nil {
		t.Fatal(err)
	}
	if link.CheckoutURL != "https://pay.payos.vn/web/pl_9" || link.QRCode != "000201" || link.PaymentLinkID != "pl_9" {
		t.Fatalf("unexpected link: %+v", link)
	}
	if len(link.Raw) == 0 {
		t.Fatal("raw response not kept")
	}
	want := NewSigner("secret").Sign([]byte("amount=50000&cancelUrl=http://c&description=TOPUP-X&orderCode=9&returnUrl=http://r"))
	if gotReq.Signature != want {
		t.Fatalf("request signature = %q, want %q", gotReq.Signature, want)
	}
}

func TestClientGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/payment-requests/1" {
			_, _ = w.Write([]byte(`{"code":"231","desc":"order exists","data":null}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.GetPaymentInfo(context.Background(), 1); !errors.Is(err, ErrGateway) {
		t.Fatalf("non-00 code: %v", err)
	}
	if _, err := c.GetPaymentInfo(context.Background(), 2); !errors.Is(err, ErrGateway) {
		t.Fatalf("http 502: %v", err)
	}
}

func TestClientGetPaymentInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"00","desc":"ok","data":{"id":"pl_1","orderCode":1,"amount":5000,"amountPaid":5000,"status":"PAID","transactions":[{"reference":"FT1","amount":5000}]}}`))
	}))
	defer srv.Close()

	info, err := NewClient(Config{BaseURL: srv.URL}).GetPaymentInfo(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != "PAID" || len(info.Transactions) != 1 || info.Transactions[0].Reference != "FT1" {
		t.Fatalf("unexpected info: %+v", info)
	}
}
