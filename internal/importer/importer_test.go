package importer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mpesaSample = `Receipt No.,Completion Time,Details,Transaction Status,Paid In,Account No.
TCA1B2C3D4,05-03-2025 14:22:01,Pay Bill from 2547XXXXX123,Completed,"5,000.00",ln-000001
TCA1B2C3D5,05-03-2025 14:25:40,Pay Bill from 2547XXXXX456,Completed,1200.50,LN-000002
TCA1B2C3D6,05-03-2025 14:30:00,Business Payment Charge,Completed,,LN-000001
TCA1B2C3D7,05-03-2025 15:00:00,Pay Bill from 2547XXXXX789,Cancelled,300.00,LN-000003
`

func TestMpesaParser_Parse(t *testing.T) {
	rows, err := (&MpesaParser{}).Parse(strings.NewReader(mpesaSample))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "TCA1B2C3D4", rows[0].Receipt)
	assert.Equal(t, "LN-000001", rows[0].LoanRef)
	assert.Equal(t, "5000.00", rows[0].Amount.StringFixed(2))
	assert.Equal(t, "mpesa", rows[0].Method)
	assert.Equal(t, time.Date(2025, 3, 5, 14, 22, 1, 0, time.UTC), rows[0].CompletedAt)

	assert.Equal(t, "LN-000002", rows[1].LoanRef)
	assert.Equal(t, "1200.50", rows[1].Amount.StringFixed(2))
}

func TestMpesaParser_MissingReceiptRejected(t *testing.T) {
	data := "Receipt No.,Completion Time,Details,Transaction Status,Paid In,Account No.\n" +
		",05-03-2025 14:22:01,Pay Bill,Completed,100.00,LN-000001\n"
	_, err := (&MpesaParser{}).Parse(strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestMpesaParser_HeaderOnly(t *testing.T) {
	rows, err := (&MpesaParser{}).Parse(strings.NewReader(
		"Receipt No.,Completion Time,Details,Transaction Status,Paid In,Account No.\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	require.NotNil(t, r.Get("mpesa"))
	assert.NotNil(t, r.Get("MPESA"))
	assert.Nil(t, r.Get("equity"))

	assert.Panics(t, func() { r.Register(&MpesaParser{}) })
}

func TestScanAndMarkProcessed(t *testing.T) {
	dataDir := t.TempDir()
	importDir := filepath.Join(dataDir, "import")
	require.NoError(t, os.MkdirAll(importDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "march.csv"), []byte(mpesaSample), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(importDir, "notes.txt"), []byte("skip me"), 0o644))

	files, err := Scan(dataDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "march.csv", files[0].Name)
	assert.Positive(t, files[0].Size)

	require.NoError(t, MarkProcessed(dataDir, "march.csv"))

	files, err = Scan(dataDir)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.FileExists(t, filepath.Join(dataDir, "import", "processed", "march.csv"))
}

func TestScan_MissingDir(t *testing.T) {
	files, err := Scan(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}
