package mqtt

import (
	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"

	"github.com/chonal/lora-node/internal/backend/stack"
)

// newJoinRequest returns the MIC-signed join-request PHYPayload.
func newJoinRequest(joinEUI, devEUI lorawan.EUI64, devNonce lorawan.DevNonce, appKey lorawan.AES128Key) ([]byte, error) {
	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.JoinRequest,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.JoinRequestPayload{
			JoinEUI:  joinEUI,
			DevEUI:   devEUI,
			DevNonce: devNonce,
		},
	}

	if err := phy.SetUplinkJoinMIC(appKey); err != nil {
		return nil, errors.Wrap(err, "stack/mqtt: set join-request mic error")
	}

	b, err := phy.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "stack/mqtt: marshal join-request error")
	}
	return b, nil
}

// newDataUp returns the LoRaWAN 1.0 data-uplink PHYPayload of an ABP device.
// The FRMPayload is encrypted with the AppSKey, the MIC is signed with the
// NwkSKey.
func newDataUp(devAddr lorawan.DevAddr, fCnt uint32, pl stack.Uplink, adr bool, nwkSKey, appSKey lorawan.AES128Key) ([]byte, error) {
	mType := lorawan.UnconfirmedDataUp
	if pl.Confirmed {
		mType = lorawan.ConfirmedDataUp
	}

	fPort := pl.Port
	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: mType,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.MACPayload{
			FHDR: lorawan.FHDR{
				DevAddr: devAddr,
				FCtrl: lorawan.FCtrl{
					ADR: adr,
				},
				FCnt: fCnt,
			},
			FPort: &fPort,
			FRMPayload: []lorawan.Payload{
				&lorawan.DataPayload{Bytes: pl.Data},
			},
		},
	}

	if err := phy.EncryptFRMPayload(appSKey); err != nil {
		return nil, errors.Wrap(err, "stack/mqtt: encrypt frmpayload error")
	}

	if err := phy.SetUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, nwkSKey, nwkSKey); err != nil {
		return nil, errors.Wrap(err, "stack/mqtt: set data-uplink mic error")
	}

	b, err := phy.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "stack/mqtt: marshal data-uplink error")
	}
	return b, nil
}
