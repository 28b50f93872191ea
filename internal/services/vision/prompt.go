package vision

// speciesPrompt asks the model for a strict JSON verdict on a single feeder
// capture.
const speciesPrompt = `Analyze this bird feeder image. Return JSON with:
- birds_present (bool): Whether any birds are visible
- count (int): Number of distinct birds
- species_guess (string): Your best guess for species name (use "unknown" only if truly uncertain)
- confidence (string): "low", "medium", or "high"
- summary (string): Brief natural language description

Provide your best species guess even if not 100% certain.`
