package lexicon

import (
	"strings"
	"unicode/utf8"
)

// yoonPhones maps two-kana combinations (拗音 and loanword spellings) to
// phones. They are matched before singleKanaPhones.
var yoonPhones = map[string]string{
	"キャ": "k y a", "キュ": "k y u", "キョ": "k y o", "ギャ": "g y a",
	"ギュ": "g y u", "ギョ": "g y o", "シャ": "sh a", "シュ": "sh u",
	"ショ": "sh o", "ジャ": "j a", "ジュ": "j u", "ジョ": "j o",
	"チャ": "ch a", "チュ": "ch u", "チョ": "ch o", "ニャ": "n y a",
	"ニュ": "n y u", "ニョ": "n y o", "ヒャ": "h y a", "ヒュ": "h y u",
	"ヒョ": "h y o", "ビャ": "b y a", "ビュ": "b y u", "ビョ": "b y o",
	"ピャ": "p y a", "ピュ": "p y u", "ピョ": "p y o", "ミャ": "m y a",
	"ミュ": "m y u", "ミョ": "m y o", "リャ": "r y a", "リュ": "r y u",
	"リョ": "r y o", "ティ": "t i", "ディ": "d i", "ファ": "f a",
	"フィ": "f i", "フェ": "f e", "フォ": "f o", "フュ": "f y u",
	"チェ": "ch e", "シェ": "sh e", "ジェ": "j e", "ウィ": "u i",
	"ウェ": "u e", "ウォ": "u o", "ヴァ": "b a", "ヴィ": "b i",
	"ヴェ": "b e", "ヴォ": "b o", "トゥ": "t u", "ドゥ": "d u",
	"デュ": "d y u", "テュ": "t y u", "ツァ": "ts a", "ツィ": "ts i",
	"ツェ": "ts e", "ツォ": "ts o", "イェ": "i e", "クァ": "k w a",
	"グァ": "g w a",
}

// singleKanaPhones maps one katakana to phones.
var singleKanaPhones = map[string]string{
	"ア": "a", "イ": "i", "ウ": "u", "エ": "e", "オ": "o",
	"カ": "k a", "キ": "k i", "ク": "k u", "ケ": "k e", "コ": "k o",
	"ガ": "g a", "ギ": "g i", "グ": "g u", "ゲ": "g e", "ゴ": "g o",
	"サ": "s a", "シ": "sh i", "ス": "s u", "セ": "s e", "ソ": "s o",
	"ザ": "z a", "ジ": "j i", "ズ": "z u", "ゼ": "z e", "ゾ": "z o",
	"タ": "t a", "チ": "ch i", "ツ": "ts u", "テ": "t e", "ト": "t o",
	"ダ": "d a", "ヂ": "j i", "ヅ": "z u", "デ": "d e", "ド": "d o",
	"ナ": "n a", "ニ": "n i", "ヌ": "n u", "ネ": "n e", "ノ": "n o",
	"ハ": "h a", "ヒ": "h i", "フ": "f u", "ヘ": "h e", "ホ": "h o",
	"バ": "b a", "ビ": "b i", "ブ": "b u", "ベ": "b e", "ボ": "b o",
	"パ": "p a", "ピ": "p i", "プ": "p u", "ペ": "p e", "ポ": "p o",
	"マ": "m a", "ミ": "m i", "ム": "m u", "メ": "m e", "モ": "m o",
	"ヤ": "y a", "ユ": "y u", "ヨ": "y o", "ラ": "r a", "リ": "r i",
	"ル": "r u", "レ": "r e", "ロ": "r o", "ワ": "w a", "ヲ": "o",
	"ァ": "a", "ィ": "i", "ゥ": "u", "ェ": "e", "ォ": "o",
	"ン": "ng", "ッ": "q", "ー": "long", "ヴ": "b u",
}

// KanaToPhones converts a katakana reading to phone names using longest
// match. Unknown characters are skipped.
func KanaToPhones(kana string) []string {
	var out []string
	for len(kana) > 0 {
		_, n1 := utf8.DecodeRuneInString(kana)
		if n1 < len(kana) {
			_, n2 := utf8.DecodeRuneInString(kana[n1:])
			if ph, ok := yoonPhones[kana[:n1+n2]]; ok {
				out = append(out, strings.Fields(ph)...)
				kana = kana[n1+n2:]
				continue
			}
		}
		if ph, ok := singleKanaPhones[kana[:n1]]; ok {
			out = append(out, strings.Fields(ph)...)
		}
		kana = kana[n1:]
	}
	return out
}
