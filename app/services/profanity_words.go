package services

// baseCensorWords returns the built-in censor set. Only words four characters
// or longer are worth listing: shorter fragments reject too many candidates
// once the look-alike expansion is applied.
func baseCensorWords() []string {
	return []string{
		"anal",
		"anus",
		"arse",
		"bastard",
		"bitch",
		"boob",
		"butt",
		"clit",
		"cock",
		"crap",
		"cunt",
		"damn",
		"dick",
		"dildo",
		"dyke",
		"fuck",
		"hell",
		"homo",
		"jerk",
		"jizz",
		"kike",
		"milf",
		"nazi",
		"negro",
		"nigga",
		"nigger",
		"paki",
		"penis",
		"piss",
		"poop",
		"porn",
		"prick",
		"pube",
		"pussy",
		"queer",
		"rape",
		"scrotum",
		"semen",
		"sext",
		"shit",
		"slut",
		"smut",
		"spic",
		"suck",
		"tits",
		"twat",
		"vagina",
		"wank",
		"whore",
	}
}
