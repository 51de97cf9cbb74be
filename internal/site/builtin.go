package site

// Builtin returns the adapters for the supported chat UIs.
func Builtin() []Adapter {
	return []Adapter{
		{
			Name:  "chatgpt",
			URL:   "https://chatgpt.com/",
			Hosts: []string{"chatgpt.com", "chat.openai.com"},
			InputSelectors: []string{
				"#prompt-textarea",
				`div[contenteditable="true"][id="prompt-textarea"]`,
				"textarea[data-id]",
				"form textarea",
			},
			SendButtonSelectors: []string{
				`button[data-testid="send-button"]`,
				`button[aria-label="Send prompt"]`,
				`button[aria-label="Send message"]`,
				`form button[type="submit"]`,
			},
			History: History{
				UserSelectors:      []string{`[data-message-author-role="user"]`},
				AssistantSelectors: []string{`[data-message-author-role="assistant"]`},
			},
		},
		{
			Name:  "claude",
			URL:   "https://claude.ai/new",
			Hosts: []string{"claude.ai"},
			InputSelectors: []string{
				`div[contenteditable="true"].ProseMirror`,
				`div[contenteditable="true"]`,
				`textarea`,
			},
			SendButtonSelectors: []string{
				`button[aria-label="Send Message"]`,
				`button[aria-label="Send message"]`,
				`fieldset button[type="button"]:last-of-type`,
			},
			History: History{
				UserSelectors:      []string{`[data-testid="user-message"]`, `.font-user-message`},
				AssistantSelectors: []string{`.font-claude-message`, `[data-is-streaming] .font-claude-response`},
			},
		},
		{
			Name:  "perplexity",
			URL:   "https://www.perplexity.ai/",
			Hosts: []string{"perplexity.ai"},
			InputSelectors: []string{
				`textarea[placeholder*="Ask"]`,
				`#ask-input`,
				`div[contenteditable="true"]`,
				`textarea`,
			},
			SendButtonSelectors: []string{
				`button[aria-label="Submit"]`,
				`button[data-testid="submit-button"]`,
				`button[type="submit"]`,
			},
			History: History{
				UserSelectors:      []string{`.group\/query`, `[data-testid="query"]`},
				AssistantSelectors: []string{`.prose`},
			},
		},
		{
			Name:  "grok",
			URL:   "https://grok.com/",
			Hosts: []string{"grok.com", "x.com"},
			InputSelectors: []string{
				`textarea[aria-label="Ask Grok anything"]`,
				`div[contenteditable="true"]`,
				`textarea`,
			},
			SendButtonSelectors: []string{
				`button[aria-label="Submit"]`,
				`button[type="submit"]`,
			},
			History: History{
				UserSelectors:      []string{`.message-bubble.bg-surface-l1`},
				AssistantSelectors: []string{`.message-bubble:not(.bg-surface-l1)`},
			},
		},
		{
			Name:  "deepseek",
			URL:   "https://chat.deepseek.com/",
			Hosts: []string{"chat.deepseek.com"},
			InputSelectors: []string{
				`#chat-input`,
				`textarea[placeholder*="DeepSeek"]`,
				`textarea`,
			},
			SendButtonSelectors: []string{
				`div[role="button"][aria-disabled="false"]`,
				`button[type="submit"]`,
			},
			History: History{
				UserSelectors:      []string{`.fbb737a4`},
				AssistantSelectors: []string{`.ds-markdown`},
			},
		},
	}
}
