package serial

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"
)

func TestOpen(t *testing.T) {
	opts := Options{BaudRate: 9600, DataBits: 8, StopBits: OneStopBit, Parity: NoParity}

	_, err := Open("", opts)
	test.That(t, err, test.ShouldNotBeNil)

	tempDir := testutils.TempDirT(t, "", "")
	defer os.RemoveAll(tempDir)
	_, err = Open(filepath.Join(tempDir, "ttyNOPE"), opts)
	test.That(t, err, test.ShouldNotBeNil)
}
