package mcpserver

// EditContract describes the session semantics that LLM consumers must
// follow when editing documents through the MCP tools.
const EditContract = `# Quire Editing Contract

Quire manages documents as in-memory buffers backed by workspace files.
Every editing client MUST follow these rules.

## Lifecycle

` + "```" + `
open_document  -> buffer loaded from disk, tracked by the session
update_document -> buffer replaced in memory, document becomes dirty
save_document  -> backup snapshot taken, then buffer flushed to disk
close_document -> document leaves the session (refused while dirty)
` + "```" + `

## Rules

1. **Buffers are authoritative while a document is open.** read_document
   returns the buffer, which may differ from the file on disk. Never assume
   disk content matches what you last wrote with update_document.
2. **update_document replaces the whole buffer.** Send the complete new
   content, not a diff. Partial content destroys the rest of the document.
3. **Nothing persists until a save.** Auto-save runs periodically for dirty
   documents, but call save_document explicitly when the user expects the
   file on disk to change.
4. **Every save of a dirty buffer creates a backup snapshot first.** If you
   overwrite something important, list_backups + restore_backup recovers it.
   restore_backup only changes the buffer; follow with save_document to
   persist the restored content.
5. **Conflicts block auto-save.** When a file changes on disk while its
   buffer is dirty, the document is flagged externally modified and will not
   be auto-saved. An explicit save_document overwrites the external change;
   close_document with discard plus open_document takes the external version.
6. **Content is UTF-8 with LF line endings in buffers.** The original
   on-disk encoding and line endings are restored at save time; do not try
   to manage them yourself.
7. **Paths are workspace-relative with forward slashes** (e.g.
   ` + "`" + `src/main.go` + "`" + `). Never use absolute paths.

## Example session

` + "```" + `
open_document   path=src/config.go
read_document   path=src/config.go
update_document path=src/config.go content=<full new file>
save_document   path=src/config.go
close_document  path=src/config.go
` + "```" + `
`
