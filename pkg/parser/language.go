package parser

import (
	"fmt"
	"path"
	"strings"
	"unsafe"

	"github.com/bmatcuk/doublestar/v4"
	ts "github.com/tree-sitter/go-tree-sitter"
	ts_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	ts_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	ts_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	ts_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Language represents a supported grammar.
type Language int

const (
	// LanguageCpp represents C++ (.cpp, .cc, .h, .hpp, ...)
	LanguageCpp Language = iota
	// LanguageC represents C (.c files)
	LanguageC
	// LanguageJavaScript represents JavaScript (.js, .jsx, .mjs, .cjs files)
	LanguageJavaScript
	// LanguageTypeScript represents TypeScript (.ts, .mts, .cts files)
	LanguageTypeScript
	// LanguageTSX represents TypeScript with JSX (.tsx files)
	LanguageTSX
	// LanguageUnknown represents an unsupported language
	LanguageUnknown
)

// String returns the string representation of the language.
func (l Language) String() string {
	switch l {
	case LanguageCpp:
		return "cpp"
	case LanguageC:
		return "c"
	case LanguageJavaScript:
		return "javascript"
	case LanguageTypeScript:
		return "typescript"
	case LanguageTSX:
		return "tsx"
	default:
		return "unknown"
	}
}

// Grammar returns the tree-sitter grammar for the language.
func (l Language) Grammar() (*ts.Language, error) {
	var ptr unsafe.Pointer
	switch l {
	case LanguageCpp:
		ptr = ts_cpp.Language()
	case LanguageC:
		ptr = ts_c.Language()
	case LanguageJavaScript:
		ptr = ts_javascript.Language()
	case LanguageTypeScript:
		ptr = ts_typescript.LanguageTypescript()
	case LanguageTSX:
		ptr = ts_typescript.LanguageTSX()
	default:
		return nil, fmt.Errorf("unsupported language: %s", l)
	}

	grammar := ts.NewLanguage(ptr)
	if grammar == nil {
		return nil, fmt.Errorf("failed to load grammar for %s", l)
	}
	return grammar, nil
}

// languageGlobs maps file patterns to languages. Order matters: the first
// matching pattern wins. Headers (.h) are treated as C++ since the C++
// grammar is a superset for the constructs rewrites usually target.
var languageGlobs = []struct {
	pattern string
	lang    Language
}{
	{"**/*.{cpp,cc,cxx,c++,hpp,hh,hxx,h,inl,ipp}", LanguageCpp},
	{"**/*.c", LanguageC},
	{"**/*.tsx", LanguageTSX},
	{"**/*.{ts,mts,cts}", LanguageTypeScript},
	{"**/*.{js,jsx,mjs,cjs}", LanguageJavaScript},
}

// DetectLanguage detects the language from a file path.
// Returns LanguageUnknown if the file extension is not recognized.
func DetectLanguage(filePath string) Language {
	normalized := strings.TrimPrefix(path.Clean(ToSlash(strings.ToLower(filePath))), "/")

	for _, entry := range languageGlobs {
		if ok, _ := doublestar.Match(entry.pattern, normalized); ok {
			return entry.lang
		}
	}
	return LanguageUnknown
}

// ParseLanguageString converts a language name to a Language.
// Returns LanguageUnknown if the name is not recognized.
func ParseLanguageString(lang string) Language {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "cpp", "c++", "cxx":
		return LanguageCpp
	case "c":
		return LanguageC
	case "javascript", "js", "jsx":
		return LanguageJavaScript
	case "typescript", "ts":
		return LanguageTypeScript
	case "tsx":
		return LanguageTSX
	default:
		return LanguageUnknown
	}
}

// SupportedLanguages returns a list of all supported languages.
func SupportedLanguages() []Language {
	return []Language{
		LanguageCpp,
		LanguageC,
		LanguageJavaScript,
		LanguageTypeScript,
		LanguageTSX,
	}
}

// ToSlash converts Windows separators to forward slashes so paths can be
// matched against glob patterns.
func ToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
