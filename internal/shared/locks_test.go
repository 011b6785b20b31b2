package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayerLockKeySeparatesPayerTypes(t *testing.T) {
	client := PayerLockKey("CLIENT", 5)
	company := PayerLockKey("COMPANY", 5)

	require.NotEqual(t, client, company)
	require.Equal(t, "ledger:payer:CLIENT:5:lock", client)
}

func TestProductLockKeyIsPerProduct(t *testing.T) {
	require.NotEqual(t, ProductLockKey(1), ProductLockKey(2))
}
