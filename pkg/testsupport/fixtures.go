package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/goliatone/go-table-cache/table"
)

// OrdersSchema is the composite key table used across package tests.
var OrdersSchema = table.Schema{TableName: "Orders", HashKey: "userId", RangeKey: "orderId"}

// UsersSchema is a hash only table.
var UsersSchema = table.Schema{TableName: "Users", HashKey: "id"}

// Order builds an order record with a random order id.
func Order(userID string, total int) table.Record {
	return table.Record{
		"userId":  userID,
		"orderId": uuid.NewString(),
		"total":   total,
		"status":  "open",
	}
}

// Orders builds n orders for the same user.
func Orders(userID string, n int) []table.Record {
	out := make([]table.Record, n)
	for i := range out {
		out[i] = Order(userID, (i+1)*10)
	}
	return out
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}

// LoadRecords reads a JSON array of records from path.
func LoadRecords(t *testing.T, path string) []table.Record {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	var recs []table.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatalf("failed to unmarshal records from %s: %v", path, err)
	}
	return recs
}

// CompareGoldenJSON marshals actual and compares it against the golden file.
// A missing golden file, or UPDATE_GOLDEN=1, writes it instead.
func CompareGoldenJSON(t *testing.T, path string, actual any) {
	t.Helper()

	data, err := json.MarshalIndent(actual, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal JSON for golden file %s: %v", path, err)
	}

	expected, err := os.ReadFile(path)
	if os.Getenv("UPDATE_GOLDEN") == "1" || os.IsNotExist(err) {
		writeGolden(t, path, data)
		return
	}
	if err != nil {
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if string(data) != string(expected) {
		t.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, expected, data)
	}
}

func writeGolden(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write golden file to %s: %v", path, err)
	}
}
