package feed

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// AvatarPalette lists the colours an author avatar can take.
var AvatarPalette = []string{
	"red", "green", "blue",
	"yellow", "purple", "pink",
	"orange", "teal", "indigo",
}

// AvatarColor picks a palette colour from the sum of the character codes of
// authorID. An empty id hashes as "default".
func AvatarColor(authorID string) string {
	if authorID == "" {
		authorID = "default"
	}
	sum := 0
	for _, r := range authorID {
		sum += int(r)
	}
	return AvatarPalette[sum%len(AvatarPalette)]
}

// Initial returns the upper-cased first letter of name, or "U".
func Initial(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "U"
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r))
}
