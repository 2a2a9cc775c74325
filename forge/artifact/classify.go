package artifact

import (
	"path"
	"strings"
)

type kind struct {
	contentType ContentType
	language    string
}

var extensionKinds = map[string]kind{
	"py":     {TypeCode, "python"},
	"js":     {TypeCode, "javascript"},
	"jsx":    {TypeCode, "javascript"},
	"mjs":    {TypeCode, "javascript"},
	"ts":     {TypeCode, "typescript"},
	"tsx":    {TypeCode, "typescript"},
	"go":     {TypeCode, "go"},
	"java":   {TypeCode, "java"},
	"kt":     {TypeCode, "kotlin"},
	"rb":     {TypeCode, "ruby"},
	"php":    {TypeCode, "php"},
	"cs":     {TypeCode, "csharp"},
	"c":      {TypeCode, "c"},
	"h":      {TypeCode, "c"},
	"cpp":    {TypeCode, "cpp"},
	"cc":     {TypeCode, "cpp"},
	"hpp":    {TypeCode, "cpp"},
	"rs":     {TypeCode, "rust"},
	"swift":  {TypeCode, "swift"},
	"scala":  {TypeCode, "scala"},
	"sh":     {TypeCode, "shell"},
	"bash":   {TypeCode, "shell"},
	"sql":    {TypeCode, "sql"},
	"vue":    {TypeCode, "vue"},
	"svelte": {TypeCode, "svelte"},
	"dart":   {TypeCode, "dart"},
	"r":      {TypeCode, "r"},
	"lua":    {TypeCode, "lua"},
	"pl":     {TypeCode, "perl"},
	"ps1":    {TypeCode, "powershell"},

	"html": {TypeMarkup, "html"},
	"htm":  {TypeMarkup, "html"},
	"xml":  {TypeMarkup, "xml"},
	"svg":  {TypeMarkup, "xml"},

	"css":  {TypeStyle, "css"},
	"scss": {TypeStyle, "scss"},
	"sass": {TypeStyle, "sass"},
	"less": {TypeStyle, "less"},

	"json":       {TypeConfig, "json"},
	"yaml":       {TypeConfig, "yaml"},
	"yml":        {TypeConfig, "yaml"},
	"toml":       {TypeConfig, "toml"},
	"ini":        {TypeConfig, "ini"},
	"cfg":        {TypeConfig, "ini"},
	"conf":       {TypeConfig, "ini"},
	"env":        {TypeConfig, "dotenv"},
	"properties": {TypeConfig, "properties"},

	"md":       {TypeDocumentation, "markdown"},
	"markdown": {TypeDocumentation, "markdown"},
	"rst":      {TypeDocumentation, "rst"},
	"txt":      {TypeDocumentation, "text"},
	"adoc":     {TypeDocumentation, "asciidoc"},
}

// Filenames accepted without an extension.
var knownExtensionless = map[string]kind{
	"dockerfile":    {TypeConfig, "dockerfile"},
	"makefile":      {TypeConfig, "makefile"},
	"procfile":      {TypeConfig, "text"},
	"gemfile":       {TypeConfig, "ruby"},
	"license":       {TypeDocumentation, "text"},
	"readme":        {TypeDocumentation, "text"},
	".gitignore":    {TypeConfig, "text"},
	".dockerignore": {TypeConfig, "text"},
	".env":          {TypeConfig, "dotenv"},
}

// Extension returns the lowercased extension of p without the dot.
func Extension(p string) string {
	base := path.Base(p)
	if strings.HasPrefix(base, ".") && strings.Count(base, ".") == 1 {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(base), "."))
}

// HasRecognizedName reports whether p carries an extension or is a well-known
// extensionless file such as a Dockerfile.
func HasRecognizedName(p string) bool {
	if Extension(p) != "" {
		return true
	}
	_, ok := knownExtensionless[strings.ToLower(path.Base(p))]
	return ok
}

// Classify maps a path to its content type and language. Classification is
// purely by name; content is never inspected.
func Classify(p string) (ContentType, string) {
	if k, ok := knownExtensionless[strings.ToLower(path.Base(p))]; ok {
		return k.contentType, k.language
	}
	if k, ok := extensionKinds[Extension(p)]; ok {
		return k.contentType, k.language
	}
	return TypeUnknown, "unknown"
}
