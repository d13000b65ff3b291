package runtime

import (
	"regexp"
)

var (
	javaComment = regexp.MustCompile(`(?s)/\*.*?\*/|//[^\n]*`)

	// A public top-level type must live in a file of the same name, so it wins.
	javaPublicClass = regexp.MustCompile(`\bpublic\s+(?:(?:final|abstract|static|sealed|strictfp)\s+)*class\s+([A-Za-z_$][A-Za-z\d_$]*)`)

	javaAnyClass = regexp.MustCompile(`(?:\bclass|\bClass)\s+([A-Za-z_$][A-Za-z\d_$]*)[^;{]*\{`)
)

func javaEntryFile(code string) (string, error) {
	name := JavaClassName(code)
	if name == "" {
		return "", &EntryPointError{Language: Java, Construct: "class name"}
	}
	return name + ".java", nil
}

// JavaClassName returns the class that should be launched, or "" when none is declared.
func JavaClassName(code string) string {
	stripped := javaComment.ReplaceAllString(code, " ")
	if m := javaPublicClass.FindStringSubmatch(stripped); m != nil {
		return m[1]
	}
	if m := javaAnyClass.FindStringSubmatch(stripped); m != nil {
		return m[1]
	}
	return ""
}
