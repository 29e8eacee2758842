package telemetry

import (
	"github.com/pkg/errors"
)

var (
	ErrShortPacket   = errors.New("telemetry: packet is too short")
	ErrUnknownPacket = errors.New("telemetry: packet type is not handled")
)

// Decoder turns a datagram into a Message.
type Decoder interface {
	Decode(b []byte) (Message, error)
}

// F1Decoder reads the participants and lap data packets of the F1 24 UDP format. Every
// other packet type returns ErrUnknownPacket.
type F1Decoder struct{}

func (F1Decoder) Decode(b []byte) (Message, error) {
	p := NewPacket(b)

	var header Header

	p.Read(&header)

	if err := p.Err(); err != nil {
		return nil, errors.Wrap(err, "telemetry: could not read header")
	}

	switch header.PacketID {
	case PacketIDParticipants:
		return decodeParticipants(header, p)
	case PacketIDLapData:
		return decodeLaps(header, p)
	default:
		return nil, errors.Wrapf(ErrUnknownPacket, "packet id %d", header.PacketID)
	}
}

func decodeParticipants(header Header, p *Packet) (Message, error) {
	participants := Participants{
		Header:        header,
		NumActiveCars: p.ReadUint8(),
	}

	for i := range participants.Cars {
		var data ParticipantData

		p.Read(&data)

		if err := p.Err(); err != nil {
			return nil, errors.Wrapf(err, "telemetry: could not read participant %d", i)
		}

		participants.Cars[i] = Participant{
			Name:   cString(data.Name[:]),
			TeamID: data.TeamID,
		}
	}

	return participants, nil
}

func decodeLaps(header Header, p *Packet) (Message, error) {
	laps := Laps{
		Header: header,
	}

	for i := range laps.Cars {
		var data LapData

		p.Read(&data)

		if err := p.Err(); err != nil {
			return nil, errors.Wrapf(err, "telemetry: could not read lap data %d", i)
		}

		laps.Cars[i] = Lap{
			LastLapTimeInMS: data.LastLapTimeInMS,
		}
	}

	return laps, nil
}
