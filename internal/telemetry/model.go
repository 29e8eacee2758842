package telemetry

// MaxCars is the number of car slots in every per-car array the game sends.
const MaxCars = 22

type PacketID uint8

const (
	PacketIDMotion              PacketID = 0
	PacketIDSession             PacketID = 1
	PacketIDLapData             PacketID = 2
	PacketIDEvent               PacketID = 3
	PacketIDParticipants        PacketID = 4
	PacketIDCarSetups           PacketID = 5
	PacketIDCarTelemetry        PacketID = 6
	PacketIDCarStatus           PacketID = 7
	PacketIDFinalClassification PacketID = 8
	PacketIDLobbyInfo           PacketID = 9
	PacketIDCarDamage           PacketID = 10
	PacketIDSessionHistory      PacketID = 11
	PacketIDTyreSets            PacketID = 12
	PacketIDMotionEx            PacketID = 13
	PacketIDTimeTrial           PacketID = 14
)

type Message interface {
	PacketID() PacketID
}

type Header struct {
	PacketFormat            uint16
	GameYear                uint8
	GameMajorVersion        uint8
	GameMinorVersion        uint8
	PacketVersion           uint8
	PacketID                PacketID
	SessionUID              uint64
	SessionTime             float32
	FrameIdentifier         uint32
	OverallFrameIdentifier  uint32
	PlayerCarIndex          uint8
	SecondaryPlayerCarIndex uint8
}

// headerSize is the encoded size of Header.
const headerSize = 29

// ParticipantData is a single car slot of the participants packet.
type ParticipantData struct {
	AIControlled    uint8
	DriverID        uint8
	NetworkID       uint8
	TeamID          uint8
	MyTeam          uint8
	RaceNumber      uint8
	Nationality     uint8
	Name            [48]byte
	YourTelemetry   uint8
	ShowOnlineNames uint8
	TechLevel       uint16
	Platform        uint8
}

// Participant is the identity of the driver in a car slot.
type Participant struct {
	Name   string `json:"name"`
	TeamID uint8  `json:"teamId"`
}

type Participants struct {
	Header        Header
	NumActiveCars uint8
	Cars          [MaxCars]Participant
}

func (Participants) PacketID() PacketID {
	return PacketIDParticipants
}

// LapData is a single car slot of the lap data packet.
type LapData struct {
	LastLapTimeInMS              uint32
	CurrentLapTimeInMS           uint32
	Sector1TimeMSPart            uint16
	Sector1TimeMinutesPart       uint8
	Sector2TimeMSPart            uint16
	Sector2TimeMinutesPart       uint8
	DeltaToCarInFrontMSPart      uint16
	DeltaToCarInFrontMinutesPart uint8
	DeltaToRaceLeaderMSPart      uint16
	DeltaToRaceLeaderMinutesPart uint8
	LapDistance                  float32
	TotalDistance                float32
	SafetyCarDelta               float32
	CarPosition                  uint8
	CurrentLapNum                uint8
	PitStatus                    uint8
	NumPitStops                  uint8
	Sector                       uint8
	CurrentLapInvalid            uint8
	Penalties                    uint8
	TotalWarnings                uint8
	CornerCuttingWarnings        uint8
	NumUnservedDriveThroughPens  uint8
	NumUnservedStopGoPens        uint8
	GridPosition                 uint8
	DriverStatus                 uint8
	ResultStatus                 uint8
	PitLaneTimerActive           uint8
	PitLaneTimeInLaneInMS        uint16
	PitStopTimerInMS             uint16
	PitStopShouldServePen        uint8
	SpeedTrapFastestSpeed        float32
	SpeedTrapFastestLap          uint8
}

// Lap is the lap record of a car slot.
type Lap struct {
	LastLapTimeInMS uint32 `json:"lastLapTimeInMS"`
}

type Laps struct {
	Header Header
	Cars   [MaxCars]Lap
}

func (Laps) PacketID() PacketID {
	return PacketIDLapData
}
