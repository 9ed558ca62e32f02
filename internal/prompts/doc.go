// Package prompts contains the text Shopkeep sends to models and shows
// to customers.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation and are checked by tests.
// Each category gets its own file with an exported function that accepts
// the dynamic parts and returns the finished string.
package prompts
