package receipt

// receiptPrompt is the fixed instruction sent with every receipt image.
// The contract is a single JSON object with exactly four fields; markdown
// wrapping is explicitly forbidden (models still sometimes ignore that,
// which is why the extractor strips fences afterwards).
const receiptPrompt = "You are a receipt parser for a personal finance app.\n\n" +
	"Task:\n" +
	"- Analyze the attached receipt image.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a single JSON object.\n\n" +
	"The object must have exactly these fields:\n" +
	"- \"amount\": number, the total amount paid\n" +
	"- \"description\": string, a short description of the purchase\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
	"- \"category\": string, a general spending category suggestion " +
	"(e.g. \"Food\", \"Transport\", \"Groceries\", \"Entertainment\")\n\n" +
	"Rules:\n" +
	"- If a field cannot be read from the receipt, make your best guess.\n" +
	"- Return ONLY valid raw JSON.\n" +
	"- Do NOT wrap the response in code fences.\n" +
	"- Do NOT use ```json or any Markdown.\n" +
	"- Output must begin with \"{\" and end with \"}\".\n"
