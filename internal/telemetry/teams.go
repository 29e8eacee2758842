package telemetry

const UnknownTeam = "Unknown Team"

var teamNames = map[uint8]string{
	0:   "Mercedes-AMG Petronas F1 Team",
	1:   "Scuderia Ferrari",
	2:   "Oracle Red Bull Racing",
	3:   "Williams Racing",
	4:   "Aston Martin Aramco F1 Team",
	5:   "BWT Alpine F1 Team",
	6:   "Visa Cash App RB F1 Team",
	7:   "MoneyGram Haas F1 Team",
	8:   "McLaren F1 Team",
	9:   "Stake F1 Team Kick Sauber",
	41:  "F1 Generic",
	104: "F1 Custom Team",
	143: "Art GP",
	144: "Campos",
	145: "Carlin",
	146: "PHM",
	147: "Dams",
	148: "Hitech",
	149: "MP Motorsport",
	150: "Prema",
	151: "Trident",
	152: "Van Amersfoort Racing",
	153: "Virtuosi",
}

func TeamName(teamID uint8) string {
	if name, ok := teamNames[teamID]; ok {
		return name
	}

	return UnknownTeam
}
