// Package classify decides how a file's bytes should be stored: via the
// text engine, via content-defined chunking, or via both (hybrid), and
// separately offers a finer file-category hint used to pick a chunker
// preset.
package classify

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dits-vcs/dits/chunk"
)

// Strategy is the storage routing decision for a file.
type Strategy int

const (
	// DitsChunk routes the file through content-defined chunking.
	DitsChunk Strategy = iota
	// GitText routes the file through the text engine's blob store.
	GitText
	// Hybrid stores metadata via the text engine and payload via chunking.
	Hybrid
)

// String renders a short label, matching the original's status-output label.
func (s Strategy) String() string {
	switch s {
	case GitText:
		return "text"
	case Hybrid:
		return "hybrid"
	default:
		return "binary"
	}
}

// Description is a human-readable rendering for UI surfaces.
func (s Strategy) Description() string {
	switch s {
	case GitText:
		return "Git (text)"
	case Hybrid:
		return "Hybrid (Git+Dits)"
	default:
		return "Dits (binary)"
	}
}

// SupportsLineDiff reports whether this strategy carries line-level diff.
func (s Strategy) SupportsLineDiff() bool {
	return s == GitText || s == Hybrid
}

// SupportsTextMerge reports whether this strategy carries 3-way text merge.
func (s Strategy) SupportsTextMerge() bool {
	return s == GitText
}

// SupportsBlame reports whether this strategy carries blame/annotate.
func (s Strategy) SupportsBlame() bool {
	return s == GitText
}

// FileClassifier is a pure function of (path, optional content) to Strategy.
// It carries no mutable state; a single instance may be shared freely.
type FileClassifier struct{}

// New returns a ready-to-use classifier.
func New() FileClassifier {
	return FileClassifier{}
}

// Classify determines the storage strategy for path, consulting content
// only when the extension and filename tables are inconclusive.
func (FileClassifier) Classify(path string, content []byte) Strategy {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext != "" {
		if s, ok := classifyByExtension(ext); ok {
			return s
		}
	}

	name := strings.ToLower(filepath.Base(path))
	if s, ok := classifyByFilename(name); ok {
		return s
	}

	if content != nil {
		return classifyByContent(content)
	}

	return DitsChunk
}

var extensionText = buildSet(
	// Documentation
	"txt", "md", "markdown", "rst", "adoc", "asciidoc", "org", "tex", "rtf",
	// Data formats
	"json", "yaml", "yml", "toml", "xml", "csv", "tsv", "ini", "cfg", "conf",
	"properties", "env",
	// Web
	"html", "htm", "xhtml", "css", "scss", "sass", "less", "styl", "svg",
	// JavaScript ecosystem
	"js", "mjs", "cjs", "jsx", "ts", "tsx", "mts", "cts", "vue", "svelte", "astro",
	// Systems programming
	"rs", "go", "c", "cpp", "cc", "cxx", "h", "hpp", "hxx", "hh", "zig", "nim", "v", "d",
	// Scripting
	"py", "pyi", "pyw", "rb", "rbw", "pl", "pm", "t", "php", "php3", "php4", "php5",
	"phtml", "lua", "tcl", "r", "rmd", "jl",
	// Shell
	"sh", "bash", "zsh", "fish", "ksh", "csh", "tcsh", "ps1", "psm1", "psd1", "bat", "cmd",
	// JVM
	"java", "kt", "kts", "scala", "sc", "groovy", "gradle", "clj", "cljs", "cljc", "edn",
	// .NET
	"cs", "csx", "fs", "fsx", "fsi", "vb", "vbs", "cshtml", "razor",
	// Functional
	"hs", "lhs", "ml", "mli", "elm", "ex", "exs", "erl", "hrl",
	// Query languages
	"sql", "psql", "mysql", "pgsql", "graphql", "gql",
	// Schema/Protocol
	"proto", "protobuf", "thrift", "avsc", "avro", "fbs",
	// Build/Config
	"makefile", "cmake", "mak", "mk", "ninja", "dockerfile", "containerfile",
	"vagrantfile", "rakefile", "gemfile", "podfile", "cartfile", "fastfile", "procfile",
	// Lock files (text-based)
	"lock",
	// Git-specific
	"gitignore", "gitattributes", "gitmodules", "mailmap",
	// Editor configs
	"editorconfig", "prettierrc", "eslintrc", "stylelintrc", "babelrc", "swcrc", "browserslistrc",
	// DevOps
	"tf", "tfvars", "hcl", "nomad", "sentinel", "workflow", "action",
	// Licenses and legal
	"license", "licence", "copying", "authors", "contributors", "changelog",
	"history", "news", "readme", "todo", "fixme", "hack",
)

var extensionBinary = buildSet(
	// Video
	"mp4", "m4v", "mov", "mkv", "avi", "webm", "wmv", "flv", "mxf", "r3d",
	"braw", "ari", "dpx", "exr", "prores", "3gp", "3g2", "m2ts",
	"vob", "ogv", "m2v", "mpg", "mpeg",
	// Audio
	"mp3", "wav", "aiff", "aif", "flac", "aac", "m4a", "ogg", "oga", "wma",
	"opus", "alac", "ape", "wv", "mka", "ac3", "dts", "mid", "midi",
	// Image
	"png", "jpg", "jpeg", "gif", "webp", "bmp", "tiff", "tif", "ico", "icns",
	"heic", "heif", "avif", "jxl", "raw", "cr2", "cr3", "nef", "arw", "dng",
	"orf", "rw2", "pef", "srw", "raf",
	// Design
	"psd", "psb", "ai", "eps", "indd", "sketch", "fig", "xd", "xcf", "kra",
	"cdr", "afdesign", "afphoto", "afpub",
	// 3D
	"blend", "blend1", "fbx", "obj", "gltf", "glb", "usd", "usda", "usdc",
	"usdz", "abc", "c4d", "max", "ma", "mb", "3ds", "dae", "stl", "ply",
	"hip", "hiplc", "hipnc", "nk", "nknc",
	// Archives
	"zip", "rar", "7z", "tar", "gz", "bz2", "xz", "lz", "lz4", "zst", "lzma",
	"cab", "arj", "lzh", "ace", "iso", "dmg", "pkg", "deb", "rpm", "apk",
	"ipa", "msi", "appx", "snap", "flatpak",
	// Executables
	"exe", "dll", "so", "dylib", "a", "lib", "o", "ko", "sys", "drv", "efi",
	"elf", "bin", "com", "app", "bundle",
	// Documents (binary)
	"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "odp",
	"odg", "pages", "numbers", "key", "epub", "mobi", "azw", "azw3", "djvu",
	// Fonts
	"ttf", "otf", "woff", "woff2", "eot", "pfb", "pfm", "fon", "fnt",
	// Database files
	"db", "sqlite", "sqlite3", "mdb", "accdb", "frm", "myd", "myi", "ibd", "dbf",
	// Game assets
	"uasset", "umap", "upk", "prefab", "unity", "asset", "mat", "controller",
	"anim", "pak", "wad", "bsp", "vpk", "gcf",
	// Certificates and keys (binary, not text PEM)
	"der", "p12", "pfx", "jks", "keystore",
)

var extensionHybrid = buildSet("prproj", "aep", "drp", "fcpxml", "otio")

var filenameText = buildSet(
	".bashrc", ".bash_profile", ".bash_logout", ".zshrc", ".zprofile", ".zshenv",
	".profile", ".login", ".logout",
	".vimrc", ".gvimrc", ".exrc", ".nanorc", ".emacs", ".spacemacs",
	".gitconfig", ".gitignore", ".gitattributes", ".npmrc", ".yarnrc", ".nvmrc",
	".python-version", ".ruby-version", ".node-version", ".tool-versions",
	".htpasswd", ".htaccess", ".htgroups",
	".dockerignore",
	"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	"composer.json", "composer.lock", "cargo.toml", "cargo.lock", "go.mod",
	"go.sum", "gemfile", "gemfile.lock", "pipfile", "pipfile.lock",
	"poetry.lock", "pyproject.toml", "requirements.txt", "setup.py", "setup.cfg",
	".travis.yml", ".circleci", "appveyor.yml", "azure-pipelines.yml",
	"bitbucket-pipelines.yml", "jenkinsfile", ".gitlab-ci.yml",
	".ditsignore", ".ditsattributes",
)

func buildSet(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

func classifyByExtension(ext string) (Strategy, bool) {
	if _, ok := extensionText[ext]; ok {
		return GitText, true
	}
	if _, ok := extensionBinary[ext]; ok {
		return DitsChunk, true
	}
	if _, ok := extensionHybrid[ext]; ok {
		return Hybrid, true
	}
	return DitsChunk, false
}

func classifyByFilename(name string) (Strategy, bool) {
	if _, ok := filenameText[name]; ok {
		return GitText, true
	}
	return DitsChunk, false
}

func classifyByContent(content []byte) Strategy {
	if len(content) == 0 {
		return GitText
	}

	sampleSize := len(content)
	if sampleSize > 8192 {
		sampleSize = 8192
	}
	sample := content[:sampleSize]
	for _, b := range sample {
		if b == 0 {
			return DitsChunk
		}
	}

	if !utf8.Valid(content) {
		return DitsChunk
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) == 0 {
		return GitText
	}
	total := 0
	for _, l := range lines {
		total += len(l)
	}
	avg := total / len(lines)
	if avg < 500 {
		return GitText
	}
	return DitsChunk
}

// Category is a finer-grained file category used to pick a chunker preset
// and to flag collaborator-layer hints (locking, mergeability) that the
// core records but does not itself enforce.
type Category int

const (
	CategoryBinary Category = iota
	CategoryVideo
	CategoryAudio
	CategoryImage
	CategoryModel3D
	CategoryProject
	CategoryGameAsset
	CategoryArchive
	CategoryText
)

var categoryByExtension = map[string]Category{
	// Video
	"mp4": CategoryVideo, "m4v": CategoryVideo, "mov": CategoryVideo, "mkv": CategoryVideo,
	"avi": CategoryVideo, "webm": CategoryVideo, "wmv": CategoryVideo, "flv": CategoryVideo,
	"mxf": CategoryVideo, "r3d": CategoryVideo, "braw": CategoryVideo, "ari": CategoryVideo,
	"dpx": CategoryVideo, "exr": CategoryVideo, "prores": CategoryVideo, "3gp": CategoryVideo,
	"3g2": CategoryVideo, "m2ts": CategoryVideo, "mts": CategoryVideo, "vob": CategoryVideo,
	"ogv": CategoryVideo,
	// Audio
	"mp3": CategoryAudio, "wav": CategoryAudio, "aiff": CategoryAudio, "aif": CategoryAudio,
	"flac": CategoryAudio, "aac": CategoryAudio, "m4a": CategoryAudio, "ogg": CategoryAudio,
	"wma": CategoryAudio, "opus": CategoryAudio, "alac": CategoryAudio,
	// Image
	"psd": CategoryImage, "psb": CategoryImage, "tiff": CategoryImage, "tif": CategoryImage,
	"raw": CategoryImage, "cr2": CategoryImage, "cr3": CategoryImage, "nef": CategoryImage,
	"arw": CategoryImage, "dng": CategoryImage, "orf": CategoryImage, "rw2": CategoryImage,
	"png": CategoryImage, "jpg": CategoryImage, "jpeg": CategoryImage, "gif": CategoryImage,
	"bmp": CategoryImage, "webp": CategoryImage, "heic": CategoryImage, "heif": CategoryImage,
	"avif": CategoryImage,
	// 3D
	"blend": CategoryModel3D, "blend1": CategoryModel3D, "ma": CategoryModel3D, "mb": CategoryModel3D,
	"max": CategoryModel3D, "c4d": CategoryModel3D, "hip": CategoryModel3D, "hiplc": CategoryModel3D,
	"fbx": CategoryModel3D, "obj": CategoryModel3D, "dae": CategoryModel3D, "gltf": CategoryModel3D,
	"glb": CategoryModel3D, "usd": CategoryModel3D, "usda": CategoryModel3D, "usdc": CategoryModel3D,
	"usdz": CategoryModel3D, "abc": CategoryModel3D, "3ds": CategoryModel3D, "stl": CategoryModel3D,
	"ply": CategoryModel3D,
	// NLE/VFX Project files
	"prproj": CategoryProject, "drp": CategoryProject, "aep": CategoryProject, "nk": CategoryProject,
	"hrox": CategoryProject, "veg": CategoryProject, "fcpxml": CategoryProject, "otio": CategoryProject,
	"edl": CategoryProject, "aaf": CategoryProject, "omf": CategoryProject,
	// Game engine assets
	"uasset": CategoryGameAsset, "umap": CategoryGameAsset, "prefab": CategoryGameAsset,
	"unity": CategoryGameAsset, "asset": CategoryGameAsset, "mat": CategoryGameAsset,
	"controller": CategoryGameAsset, "anim": CategoryGameAsset, "meta": CategoryGameAsset,
	// Archives
	"zip": CategoryArchive, "rar": CategoryArchive, "7z": CategoryArchive, "tar": CategoryArchive,
	"gz": CategoryArchive, "bz2": CategoryArchive, "xz": CategoryArchive, "lz4": CategoryArchive,
	"zst": CategoryArchive, "pak": CategoryArchive,
	// Text/code
	"txt": CategoryText, "md": CategoryText, "json": CategoryText, "yaml": CategoryText,
	"yml": CategoryText, "toml": CategoryText, "ini": CategoryText, "cfg": CategoryText,
	"rs": CategoryText, "py": CategoryText, "js": CategoryText, "ts": CategoryText,
	"jsx": CategoryText, "tsx": CategoryText, "html": CategoryText, "css": CategoryText,
	"c": CategoryText, "cpp": CategoryText, "h": CategoryText, "hpp": CategoryText,
	"java": CategoryText, "kt": CategoryText, "swift": CategoryText, "go": CategoryText,
	"sh": CategoryText, "bash": CategoryText, "zsh": CategoryText, "ps1": CategoryText,
	"bat": CategoryText, "cmd": CategoryText,
}

// CategoryFromPath derives a Category from a path's extension alone.
func CategoryFromPath(path string) Category {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if c, ok := categoryByExtension[ext]; ok {
		return c
	}
	return CategoryBinary
}

// ChunkerPreset returns the recommended chunker configuration for this
// category, per the source's category→preset mapping.
func (c Category) ChunkerPreset() chunk.Config {
	switch c {
	case CategoryVideo, CategoryAudio, CategoryImage, CategoryModel3D:
		return chunk.Media()
	case CategoryProject, CategoryText:
		return chunk.Project()
	case CategoryArchive:
		return chunk.Fast()
	default:
		return chunk.Default()
	}
}

// NeedsLocking reports whether files of this category benefit from
// exclusive-edit locking in multi-user scenarios. The core records this
// hint; enforcing it is a collaborator-layer concern.
func (c Category) NeedsLocking() bool {
	return c == CategoryProject || c == CategoryModel3D || c == CategoryGameAsset
}

// IsMergeable reports whether this category is a reasonable candidate for
// text-level merge.
func (c Category) IsMergeable() bool {
	return c == CategoryText || c == CategoryProject
}

// Description renders a short human label for this category.
func (c Category) Description() string {
	switch c {
	case CategoryVideo:
		return "Video"
	case CategoryAudio:
		return "Audio"
	case CategoryImage:
		return "Image"
	case CategoryModel3D:
		return "3D Model/Scene"
	case CategoryProject:
		return "Project File"
	case CategoryGameAsset:
		return "Game Asset"
	case CategoryArchive:
		return "Archive"
	case CategoryText:
		return "Text/Code"
	default:
		return "Binary"
	}
}
