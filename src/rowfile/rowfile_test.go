package rowfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rowvault/src/cryptox"
	"rowvault/src/schema"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sch := schema.New()
	_, err := sch.Add("name", schema.Text, schema.ColumnOptions{})
	require.NoError(t, err)
	_, err = sch.Add("age", schema.Int, schema.ColumnOptions{})
	require.NoError(t, err)

	columns := map[string]any{"name": "johndoe", "age": float64(30)}

	data, err := Encode(columns, sch, nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Equal(t, `["age","name"]`, lines[0])

	decoded, err := Decode(data, sch, nil)
	require.NoError(t, err)
	require.Equal(t, columns, decoded)
}

func TestEncodeEncryptsMarkedColumn(t *testing.T) {
	sch := schema.New()
	_, err := sch.Add("credit_card", schema.Text, schema.ColumnOptions{Encrypted: true})
	require.NoError(t, err)

	key, err := cryptox.DeriveKEK([]byte("s3cret"))
	require.NoError(t, err)

	data, err := Encode(map[string]any{"credit_card": "4111111111111111"}, sch, key)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.NotContains(t, lines[1], "4111")

	decoded, err := Decode(data, sch, key)
	require.NoError(t, err)
	require.Equal(t, "4111111111111111", decoded["credit_card"])
}

func TestEncodeEncryptedColumnRequiresDEK(t *testing.T) {
	sch := schema.New()
	_, err := sch.Add("credit_card", schema.Text, schema.ColumnOptions{Encrypted: true})
	require.NoError(t, err)

	_, err = Encode(map[string]any{"credit_card": "4111"}, sch, nil)
	require.Error(t, err)
}

func TestDecodeColumnMatchesFullDecode(t *testing.T) {
	sch := schema.New()
	_, err := sch.Add("name", schema.Text, schema.ColumnOptions{})
	require.NoError(t, err)

	data, err := Encode(map[string]any{"name": "ada"}, sch, nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	header, err := Header(lines[0])
	require.NoError(t, err)
	require.Equal(t, []string{"name"}, header)

	value, err := DecodeColumn("name", lines[1], sch, nil)
	require.NoError(t, err)
	require.Equal(t, "ada", value)
}
