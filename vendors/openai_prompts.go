package vendors

// ChatSystemPrompt is prepended to every completion request. It is fixed
// configuration, not a per-call option: the assistant answers in Chinese and
// structures replies with Markdown for the browser renderer.
const ChatSystemPrompt = "You are a helpful AI assistant. Please respond in Chinese and format your answer using Markdown syntax. Use appropriate markdown elements like headers, lists, code blocks, bold text etc. when needed to make the response well-structured and easy to read."
