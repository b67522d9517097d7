package mcpserver

// ArticleFormat describes the source file layout that LLM consumers should
// follow when writing articles or notes by hand.
const ArticleFormat = `# Quire Article Format

Every article and note is a Markdown file with a YAML front matter block.

## Structure

` + "```" + `markdown
---
title: Human-readable title          # REQUIRED, the slug is derived from it
author: jane                         # REQUIRED
date: 2025-01-15T09:00:00Z           # REQUIRED, RFC 3339 or YYYY-MM-DD
description: One-line summary        # REQUIRED, shown in listings and search
tags:                                # OPTIONAL YAML list
  - tag-one
draft: false                         # OPTIONAL, drafts are never listed or searched
category: guides                     # OPTIONAL
last_updated: 2025-02-01T10:00:00Z   # OPTIONAL, set on every update
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. The ` + "```" + `---` + "```" + ` fences must be the first line of the file.
2. The body starts after the closing fence; leading blank lines are dropped.
3. **Slugs** are the lowercase title with runs of other characters folded to
   ` + "`" + `-` + "`" + `. A taken slug gets ` + "`" + `-1` + "`" + `, ` + "`" + `-2` + "`" + ` and so on.
4. With nested roots the file lives at ` + "`" + `category/slug.md` + "`" + `;
   otherwise at ` + "`" + `slug.md` + "`" + `.
5. **Search** sees notes under a ` + "`" + `notes/` + "`" + ` slug prefix.
6. **Encoding** is UTF-8.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
author: system
date: 2025-01-20T08:00:00Z
description: Notes from the weekly standup.
tags:
  - meeting-notes
draft: false
category: meetings
---

Attendees: Alice, Bob.
` + "```" + `
`
