package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set"
)

var (
	reTag        = regexp.MustCompile(`<[^>]*>`)
	reNonWord    = regexp.MustCompile(`[^\w.-]+`)
	reUnderscore = regexp.MustCompile(`_+`)
	reBucketKey  = regexp.MustCompile(`^@[0-9a-f]{8}@$`)
	reSegment    = regexp.MustCompile(`[^0-9A-Za-z_@.-]`)
	// extensions considered safe to keep as-is; anything unknown falls
	// back to the configured default so a crafted name can never smuggle
	// an executable suffix into the cache.
	knownExtensions = mapset.NewSet()
	aliasExtensions = map[string]string{
		"htm":  "html",
		"jpeg": "jpg",
		"tif":  "tiff",
		"mpeg": "mpg",
	}
	accentReplacer = strings.NewReplacer(
		"à", "a", "á", "a", "â", "a", "ä", "a", "ã", "a", "å", "a",
		"ç", "c", "è", "e", "é", "e", "ê", "e", "ë", "e",
		"ì", "i", "í", "i", "î", "i", "ï", "i", "ñ", "n",
		"ò", "o", "ó", "o", "ô", "o", "ö", "o", "õ", "o",
		"ù", "u", "ú", "u", "û", "u", "ü", "u", "ý", "y", "ÿ", "y",
		"æ", "ae", "œ", "oe", "ß", "ss",
	)
)

func init() {
	for _, ext := range []string{
		"7z", "aac", "avi", "bin", "bmp", "css", "csv", "doc", "docx",
		"flac", "gif", "gz", "html", "ico", "jpg", "js", "json", "md",
		"mkv", "mov", "mp3", "mp4", "mpg", "odp", "ods", "odt", "ogg",
		"pdf", "png", "ppt", "pptx", "psd", "rar", "rtf", "svg", "tar",
		"tiff", "torrent", "ttf", "txt", "wav", "webm", "webp", "woff",
		"xls", "xlsx", "xml", "zip",
	} {
		knownExtensions.Add(ext)
	}
}

// configuredExtension allows sites to extend the builtin table from
// cfg.json without rebuilding.
func configuredExtension(ext string) bool {
	for _, e := range Config().Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// BucketKey derives the directory name holding all chunks of one upload.
// The raw identifier sent by the browser is arbitrary text, so it is hashed
// into a short fixed shape. Applying the function to an already derived key
// returns it unchanged, which lets deletion requests carry either form.
func (c *Server) BucketKey(identifier string) string {
	if reBucketKey.MatchString(identifier) {
		return identifier
	}
	return "@" + c.util.MD5(identifier)[0:8] + "@"
}

// SanitizePathSegment strips anything that could escape the intended
// directory out of a value used as a single path component.
func SanitizePathSegment(s string) string {
	s = reSegment.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._")
	if s == "" {
		s = "_"
	}
	return s
}

// SanitizeFilename rewrites a browser supplied filename into a flat ascii
// name safe to store and to serve back. The extension is normalized through
// the alias table and replaced by the default one when unrecognized.
func SanitizeFilename(name string) string {
	name = reTag.ReplaceAllString(name, "")
	name = strings.ToLower(name)
	name = accentReplacer.Replace(name)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = reNonWord.ReplaceAllString(base, "_")
	base = reUnderscore.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._-")
	if base == "" {
		base = "file"
	}
	if alias, ok := aliasExtensions[ext]; ok {
		ext = alias
	}
	if !knownExtensions.Contains(ext) && !configuredExtension(ext) {
		ext = Config().DefaultExtension
	}
	return base + "." + ext
}

func cacheSideDir(side string) string {
	return CACHE_DIR + "/" + side
}

// formDir is the subtree one identity may touch: side/actor/form/instance.
func (c *Server) formDir(side string, id Identity) string {
	return fmt.Sprintf("%s/%s/%s/%s", cacheSideDir(side),
		SanitizePathSegment(id.Actor), SanitizePathSegment(id.Form), id.FormInstance)
}

func (c *Server) fieldDir(side string, id Identity) string {
	return c.formDir(side, id) + "/" + SanitizePathSegment(id.Field)
}

func (c *Server) bucketDir(side string, id Identity, identifier string) string {
	return c.fieldDir(side, id) + "/" + c.BucketKey(identifier)
}

func (c *Server) chunkPath(id Identity, identifier, filename string, chunkNumber int) string {
	return fmt.Sprintf("%s/%s.part%d", c.bucketDir(CONST_PARTS_DIR_NAME, id, identifier),
		SanitizeFilename(filename), chunkNumber)
}

func (c *Server) finalPath(id Identity, identifier, filename string) string {
	return c.bucketDir(CONST_FINAL_DIR_NAME, id, identifier) + "/" + SanitizeFilename(filename)
}

// DescriptionPath is the sidecar holding the json record next to a cached
// file.
func DescriptionPath(filePath string) string {
	return filePath + CONST_DESCRIPTION_SUFFIX
}

func IsDescriptionFile(name string) bool {
	return strings.HasSuffix(name, CONST_DESCRIPTION_SUFFIX)
}

// CacheMetadata ties a cached file back to the form field it was uploaded
// for, so a later request can prove it may touch it.
type CacheMetadata struct {
	Champ                 string `json:"champ"`
	Identifiant           string `json:"identifiant"`
	Formulaire            string `json:"formulaire"`
	FormulaireArgs        string `json:"formulaire_args"`
	FormulaireIdentifiant string `json:"formulaire_identifiant"`
	Extension             string `json:"extension"`
	Pathname              string `json:"pathname,omitempty"`
}

// UploadDescriptor mirrors the record a classic form POST would produce for
// one file, with the cache bookkeeping nested under Bigup.
type UploadDescriptor struct {
	Name    string        `json:"name"`
	Size    int64         `json:"size"`
	Type    string        `json:"type"`
	TmpName string        `json:"tmp_name,omitempty"`
	Error   int           `json:"error"`
	Bigup   CacheMetadata `json:"bigup"`
}

// Public strips the server side paths before the record leaves the process.
func (d UploadDescriptor) Public() UploadDescriptor {
	d.TmpName = ""
	d.Bigup.Pathname = ""
	return d
}

func detectContentType(filePath string) string {
	var (
		err error
		fi  os.FileInfo
		f   *os.File
		n   int
		buf [512]byte
	)
	if f, err = os.Open(filePath); err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	if fi, err = f.Stat(); err != nil || fi.Size() == 0 {
		return "application/octet-stream"
	}
	n, _ = f.Read(buf[:])
	return http.DetectContentType(buf[:n])
}

// uploadErrorCode compares what landed on disk with what the client
// declared. 3 matches the classic "partial upload" code, 99 flags the
// impossible case of more bytes than announced.
func uploadErrorCode(actual, declared int64) int {
	switch {
	case declared <= 0 || actual == declared:
		return 0
	case actual < declared:
		return 3
	}
	return 99
}

// describe builds the descriptor for an assembled file, sniffing the
// content type from the bytes on disk rather than trusting the client.
func (c *Server) describe(id Identity, identifier, filePath, originalName string, declaredSize int64) (UploadDescriptor, error) {
	var (
		fi  os.FileInfo
		err error
	)
	if fi, err = os.Stat(filePath); err != nil {
		return UploadDescriptor{}, err
	}
	name := SanitizeFilename(originalName)
	return UploadDescriptor{
		Name:    name,
		Size:    fi.Size(),
		Type:    detectContentType(filePath),
		TmpName: filePath,
		Error:   uploadErrorCode(fi.Size(), declaredSize),
		Bigup: CacheMetadata{
			Champ:                 id.Field,
			Identifiant:           c.BucketKey(identifier),
			Formulaire:            id.Form,
			FormulaireArgs:        id.FormArgs,
			FormulaireIdentifiant: id.FormInstance,
			Extension:             strings.TrimPrefix(filepath.Ext(name), "."),
			Pathname:              filePath,
		},
	}, nil
}

func (c *Server) writeDescription(filePath string, desc UploadDescriptor) error {
	data, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	return os.WriteFile(DescriptionPath(filePath), data, 0664)
}

func (c *Server) readDescription(filePath string) (UploadDescriptor, error) {
	var (
		desc UploadDescriptor
		data []byte
		err  error
	)
	if data, err = os.ReadFile(DescriptionPath(filePath)); err != nil {
		return desc, err
	}
	if err = json.Unmarshal(data, &desc); err != nil {
		return desc, err
	}
	return desc, nil
}
