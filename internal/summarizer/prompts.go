package summarizer

import "fmt"

func fileSummaryPrompt(path, content string) string {
	return fmt.Sprintf(`You are a software documentation assistant. Summarize the following source file in one concise paragraph. Describe what the file does, its main types or functions, and how it fits into the project. Respond with the paragraph only.

File path: %s

--- FILE CONTENT ---
%s
--- END OF FILE ---`, path, content)
}

func repoSummaryPrompt(corpus string) string {
	return fmt.Sprintf(`You are an expert software architect. Analyze the entire provided codebase and generate a concise, well-structured digest in Markdown with these sections:

1. **Purpose:** What the project does and who it is for.
2. **Key Technologies:** Main languages, frameworks, and important libraries.
3. **Setup & Running:** How a developer would set up and run the project.
4. **Testing:** How the tests work and what they cover.
5. **Structure:** The main modules and how they interact.

--- FULL REPOSITORY CODE ---
%s
--- END OF CODE ---

Generate the digest now.`, corpus)
}

func suggestionsPrompt(repoSummary string) string {
	return fmt.Sprintf(`Based on the repository summary below, propose exactly 4 questions a developer might ask about this codebase: 2 about its domain and features, 2 about its engineering and architecture. Each question must be at most 60 characters.

Respond with ONLY a JSON array of 4 strings. No markdown, no commentary.

--- REPOSITORY SUMMARY ---
%s
--- END OF SUMMARY ---`, repoSummary)
}
