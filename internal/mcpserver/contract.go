package mcpserver

// LedgerFormatContract describes the node record format stored in every
// project ledger. It is served as an MCP resource so clients can interpret
// read_ledger output without guessing at field semantics.
const LedgerFormatContract = `# Ledger Format Contract

Each project stores its reasoning history as an append-only NDJSON file:
one JSON object per line, one line per node, oldest first. The file is
committed per node, so every line maps to exactly one commit on the
branch it was written to.

## Common fields

- ` + "`id`" + ` — ULID, unique across the project, lexically sortable by creation time.
- ` + "`type`" + ` — one of ` + "`message`" + `, ` + "`state`" + `, ` + "`merge`" + `.
- ` + "`parent`" + ` — id of the previous node on the branch at append time; absent for the first node.
- ` + "`timestamp`" + ` — RFC 3339 UTC creation time.

## message

A single chat turn.

- ` + "`role`" + ` — ` + "`user`" + `, ` + "`assistant`" + `, or ` + "`system`" + `.
- ` + "`content`" + ` — the message text.

## state

Records an artefact document update.

- ` + "`artefactSnapshot`" + ` — git blob hash of the artefact content at the
  moment of the update. Resolve it with the snapshot endpoint to recover
  the exact historical content even after later edits.

## merge

A manifest recording a branch merge. The merged nodes are NOT copied
into the target ledger; the manifest references them instead.

- ` + "`mergeFrom`" + ` — source branch name.
- ` + "`mergeSummary`" + ` — human-readable description of what was merged.
- ` + "`sourceCommit`" + ` — commit hash of the source branch head at merge time.
- ` + "`sourceNodeIds`" + ` — ids of the source-branch nodes absent from the
  target at merge time, in source ledger order.

To dereference ` + "`sourceNodeIds`" + `, read the ledger at ` + "`sourceCommit`" + `
(or the source branch) and select the listed ids.
`
