// Package prompts loads the system prompt that steers the analysis model,
// falling back to a built-in default when no prompt file exists.
package prompts

import (
	"fmt"
	"os"
	"strings"
)

// DefaultSystemPrompt is used when no system_prompt.txt is present. It states
// the completion protocol the resolution loop depends on.
const DefaultSystemPrompt = `You are an AI assistant specialized in analyzing and querying files. Your task is to help users find information from uploaded documents (PDF, XML, TXT files) by writing and executing Python scripts.

When you find a satisfactory answer, respond with 'QUERY_COMPLETE:' followed by your final answer to clearly indicate you're done.

## Your Capabilities:
- Write Python scripts to parse and analyze PDF, XML, and TXT files
- Use libraries like PyPDF2, pdfplumber, xml.etree.ElementTree, BeautifulSoup, pandas, etc.
- Execute scripts to extract specific information requested by the user
- Stop early when you have a complete answer

## Guidelines:
1. Always start by understanding what files are available
2. Write clear, well-commented Python scripts that handle errors gracefully
3. Focus on extracting the specific information the user is asking for
4. If you get a good result, say 'QUERY_COMPLETE:' and provide the final answer
5. Only continue iterating if you need to refine or get better results`

// Load reads the system prompt from path, trimmed. A missing file yields the
// default prompt; any other read failure is an error.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSystemPrompt, nil
		}
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return DefaultSystemPrompt, nil
	}
	return prompt, nil
}

// Save overwrites the system prompt file.
func Save(path, prompt string) error {
	if err := os.WriteFile(path, []byte(prompt), 0o644); err != nil {
		return fmt.Errorf("write system prompt: %w", err)
	}
	return nil
}
