// Package devid derives the device EUI from hardware-unique data.
package devid

import (
	"bytes"
	"crypto/sha256"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
)

// DefaultHardwareIDFiles are tried in order when no file is configured.
var DefaultHardwareIDFiles = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
	"/sys/class/dmi/id/product_uuid",
}

// ErrNoHardwareID is returned when none of the files contains an id.
var ErrNoHardwareID = errors.New("devid: no hardware id found")

// FromHardware returns the DevEUI derived from the first readable, non-empty
// hardware id file. When file is set, only that file is used.
func FromHardware(file string) (lorawan.EUI64, error) {
	files := DefaultHardwareIDFiles
	if file != "" {
		files = []string{file}
	}

	for _, f := range files {
		b, err := ioutil.ReadFile(f)
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				continue
			}
			return lorawan.EUI64{}, errors.Wrapf(err, "devid: read %s error", f)
		}

		b = bytes.TrimSpace(b)
		if len(b) == 0 {
			continue
		}

		return FromID(b), nil
	}

	return lorawan.EUI64{}, ErrNoHardwareID
}

// FromID returns the DevEUI for the given hardware id. The first eight bytes
// of its SHA-256 digest are used, with the locally administered bit set and the
// group bit cleared in the first byte.
func FromID(id []byte) lorawan.EUI64 {
	var eui lorawan.EUI64
	sum := sha256.Sum256(id)
	copy(eui[:], sum[:len(eui)])
	eui[0] = (eui[0] | 0x02) &^ 0x01
	return eui
}
