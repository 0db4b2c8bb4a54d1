package acoustic

// Japanese phone names for the demo phone set.
const (
	// Silence and pause
	PhonSil = SilenceName
	PhonSP  = "sp" // short pause

	// Vowels
	PhonA = "a"
	PhonI = "i"
	PhonU = "u"
	PhonE = "e"
	PhonO = "o"

	// Stops (voiceless/voiced)
	PhonK = "k"
	PhonG = "g"
	PhonT = "t"
	PhonD = "d"
	PhonP = "p"
	PhonB = "b"

	// Fricatives
	PhonS = "s"
	PhonZ = "z"
	PhonH = "h"
	PhonF = "f" // [ɸ] as in ふ

	// Affricates
	PhonCh = "ch" // [tɕ] as in ち
	PhonTs = "ts" // [ts] as in つ
	PhonJ  = "j"  // [dʑ] as in じ

	// Nasals
	PhonM  = "m"
	PhonN  = "n"
	PhonNg = "ng" // moraic nasal ん

	// Liquid
	PhonR = "r" // Japanese flap

	// Glides
	PhonY = "y"
	PhonW = "w"

	// Sibilant
	PhonSh = "sh" // [ɕ] as in し

	// Special morae
	PhonQ    = "q"    // geminate っ
	PhonLong = "long" // long vowel ー
)

// JapanesePhones returns the complete Japanese phone set, silence first.
func JapanesePhones() []string {
	return []string{
		PhonSil, PhonSP,
		PhonA, PhonI, PhonU, PhonE, PhonO,
		PhonK, PhonG, PhonT, PhonD, PhonP, PhonB,
		PhonS, PhonZ, PhonH, PhonF,
		PhonCh, PhonTs, PhonJ,
		PhonM, PhonN, PhonNg,
		PhonR,
		PhonY, PhonW,
		PhonSh,
		PhonQ, PhonLong,
	}
}

// IsFillerPhone reports whether name is a non-speech phone of the set.
func IsFillerPhone(name string) bool {
	return name == PhonSil || name == PhonSP
}
