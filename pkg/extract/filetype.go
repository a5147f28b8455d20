package extract

import (
	"path/filepath"
	"strings"
)

// typeByExtension maps recognized extensions to the coarse asset types used
// in extraction output.
var typeByExtension = map[string]string{
	".pdf":  "document",
	".doc":  "document",
	".docx": "document",
	".txt":  "document",
	".md":   "document",
	".rtf":  "document",

	".xls":  "spreadsheet",
	".xlsx": "spreadsheet",
	".csv":  "spreadsheet",

	".ppt":  "presentation",
	".pptx": "presentation",
	".key":  "presentation",

	".png":  "image",
	".jpg":  "image",
	".jpeg": "image",
	".gif":  "image",
	".webp": "image",
	".svg":  "image",
	".psd":  "image",
	".ai":   "image",
	".tif":  "image",
	".tiff": "image",

	".mp4":  "video",
	".mov":  "video",
	".avi":  "video",
	".webm": "video",
	".mkv":  "video",

	".mp3":  "audio",
	".wav":  "audio",
	".aac":  "audio",
	".flac": "audio",

	".zip": "archive",
	".tar": "archive",
	".gz":  "archive",
	".rar": "archive",
	".7z":  "archive",
}

// patternTypes resolve names with no recognized extension. Portal exports
// follow naming conventions more reliably than they keep extensions intact.
var patternTypes = []struct {
	fragment string
	fileType string
}{
	{"storyboard", "image"},
	{"thumbnail", "image"},
	{"logo", "image"},
	{"cut", "video"},
	{"reel", "video"},
	{"footage", "video"},
	{"mix", "audio"},
	{"voiceover", "audio"},
	{"brief", "document"},
	{"notes", "document"},
	{"script", "document"},
	{"contract", "document"},
}

// DeriveType derives a coarse file type from a file name: extension lookup
// first, then naming-convention fallback, then "other".
func DeriveType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if fileType, ok := typeByExtension[ext]; ok {
		return fileType
	}
	lower := strings.ToLower(fileName)
	for _, p := range patternTypes {
		if strings.Contains(lower, p.fragment) {
			return p.fileType
		}
	}
	return "other"
}
