package mcpserver

// NoteFormatContract describes how note content is stored so LLM consumers
// can create and read notes correctly.
const NoteFormatContract = `# Lattice Note Format Contract

Every note has an id, a title, a space and a content tree. Notes are linked
by undirected links, at most one per pair of notes.

## Content

Content is a JSON block-document tree:

` + "```" + `json
{"type":"doc","content":[
  {"type":"heading","attrs":{"level":2,"id":"..."},"content":[{"type":"text","text":"Goals"}]},
  {"type":"paragraph","content":[{"type":"text","text":"Ship the beta."}]}
]}
` + "```" + `

## Rules

1. The ` + "`" + `create_note` + "`" + ` tool takes **plain text**. Blank lines separate
   paragraphs; each paragraph becomes one paragraph block.
2. Headings receive a stable ` + "`" + `id` + "`" + ` when stored. The outline returned by
   ` + "`" + `get_outline` + "`" + ` lists them in document order.
3. Titles are free text. An empty title becomes "Untitled Note".
4. Links are undirected: linking A to B and B to A is the same link.
   Self-links and links to unknown notes are rejected.
5. A new note lands in the given space, or in the active note's space when
   none is given.
`
