package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	secret := "whsec_test"

	header := Sign(body, secret, time.Now())
	require.NoError(t, VerifySignature(body, header, secret, DefaultTolerance))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	secret := "whsec_test"
	header := Sign([]byte(`{"amount":1000}`), secret, time.Now())

	err := VerifySignature([]byte(`{"amount":9000}`), header, secret, DefaultTolerance)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{}`)
	header := Sign(body, "whsec_a", time.Now())

	err := VerifySignature(body, header, "whsec_b", DefaultTolerance)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	body := []byte(`{}`)
	secret := "whsec_test"
	header := Sign(body, secret, time.Now().Add(-time.Hour))

	err := VerifySignature(body, header, secret, DefaultTolerance)
	require.ErrorIs(t, err, ErrBadSignature)

	// And accepted when the caller disables the tolerance check.
	require.NoError(t, VerifySignature(body, header, secret, 0))
}

func TestVerifySignatureRejectsMalformedHeader(t *testing.T) {
	for _, header := range []string{"", "t=abc,v1=00", "v1=00", "t=123"} {
		err := VerifySignature([]byte(`{}`), header, "whsec_test", DefaultTolerance)
		require.ErrorIs(t, err, ErrBadSignature, "header %q", header)
	}
}
