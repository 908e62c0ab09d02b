package prompts

// ============================================================================
// Built-in prompt templates
// ============================================================================

// Alt asks for screen-reader alt text. It is kept short because most CMS
// alt fields are rendered inline.
const Alt = `Write concise alt text for this image for screen reader users.
Describe what is shown in one or two sentences.
Do not start with "Image of" or "Picture of".`

// Description asks for a long-form description used on the asset detail page.
const Description = `Describe this image in detail in one paragraph.
Cover the main subjects, the setting, colours and any visible text.
Do not speculate about things that are not visible.`
