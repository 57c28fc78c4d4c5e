package ocd

// PartyUnknown is the canonical name for an unrecognised affiliation.
const PartyUnknown = "UNKNOWN"

// KnownParty describes a party recognised in CAL-ACCESS data.
type KnownParty struct {
	Code         string
	Name         string
	Abbreviation string
}

// KnownParties lists the CAL-ACCESS party codes in code order.
var KnownParties = []KnownParty{
	{Code: "16001", Name: "DEMOCRATIC", Abbreviation: "DEM"},
	{Code: "16002", Name: "REPUBLICAN", Abbreviation: "REP"},
	{Code: "16003", Name: "GREEN", Abbreviation: "GRN"},
	{Code: "16004", Name: "REFORM", Abbreviation: "REF"},
	{Code: "16005", Name: "LIBERTARIAN", Abbreviation: "LIB"},
	{Code: "16006", Name: "PEACE AND FREEDOM", Abbreviation: "PF"},
	{Code: "16007", Name: "INDEPENDENT", Abbreviation: "IND"},
	{Code: "16008", Name: "AMERICAN INDEPENDENT", Abbreviation: "AI"},
	{Code: "16009", Name: "NON-PARTISAN", Abbreviation: "NP"},
	{Code: "16010", Name: "NATURAL LAW", Abbreviation: "NL"},
	{Code: "16011", Name: PartyUnknown, Abbreviation: "UNK"},
	{Code: "16012", Name: "NO PARTY PREFERENCE", Abbreviation: "NPP"},
}

var partyLookup = buildPartyLookup()

func buildPartyLookup() map[string]string {
	m := make(map[string]string, len(KnownParties)*4)
	for _, p := range KnownParties {
		m[p.Code] = p.Name
		m[p.Name] = p.Name
		m[p.Abbreviation] = p.Name
	}
	m["DEMOCRAT"] = "DEMOCRATIC"
	m["GREEN PARTY"] = "GREEN"
	m["PEACE & FREEDOM"] = "PEACE AND FREEDOM"
	m["NONPARTISAN"] = "NON-PARTISAN"
	m["NONE"] = "NO PARTY PREFERENCE"
	m["DECLINE TO STATE"] = "NO PARTY PREFERENCE"
	m["DTS"] = "NO PARTY PREFERENCE"
	m["0"] = PartyUnknown
	m[""] = PartyUnknown
	return m
}

// NormalizeParty maps a party code, abbreviation or name to its canonical
// name, or PartyUnknown.
func NormalizeParty(raw string) string {
	if name, ok := partyLookup[CleanName(raw)]; ok {
		return name
	}
	return PartyUnknown
}

// KnownPartyName reports whether name resolves to a real affiliation.
func KnownPartyName(raw string) bool {
	return NormalizeParty(raw) != PartyUnknown
}
