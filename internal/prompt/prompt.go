// Package prompt renders the analysis instructions sent to the language model.
package prompt

import "strings"

// Version identifies the template below. Bump it whenever the wording changes.
const Version = "v1"

const template = `As an intelligent video content script editor and marketing professional, analyze the SRT content and perform the following tasks:
1. Select a list of small segments with the best sections' START and END timestamps to create a highly engaging highlight of this video, keeping important parts without repeating.
2. Provide 6 category names that best describe the video.
3. List 6 interests or preferences the viewer might have.
4. Identify the countries where viewers might be watching from.
5. Suggest 5 commercial brands or products that might be relevant or useful to the viewer.
6. Describe the possible mood or emotional state of the viewer.
7. Estimate the age range of the viewer.
8. Characterize the personality traits of the viewer.
9. Offer additional insights about the viewer's preferences and behaviors that can help us understand them better, including:
 - Preferred social media platforms.
 - Likely purchasing behaviors (e.g., impulse buyer, value seeker).
 - Possible hobbies or leisure activities.
 - Technology usage patterns.
 - Content consumption habits (e.g., binge-watching, casual viewing).
 - Potential life events or milestones influencing their interests.
10. Provide a summary of the main themes and topics covered in the video.
11. Extract 10 keywords or phrases that are most significant in the video content.
12. Analyze the overall sentiment of the video (e.g., positive, negative, neutral).
13. Identify any trending topics or timely subjects mentioned in the video.
14. Describe the style and tone of the content (e.g., humorous, educational, inspirational).
15. Suggest related content or topics that viewers might be interested in after watching this video.

Remember, DO NOT WRITE EXTRA COMMENTARY and REPLY IN JSON FORMAT.
Ensure the response contains the full JSON object.
For each item, include a confidence score after each entry.
The SRT of the video is:

`

// Build returns the full prompt for a transcript. It has no side effects and
// the same input always yields the same output.
func Build(subtitleText string) string {
	var b strings.Builder
	b.Grow(len(template) + len(subtitleText) + 1)
	b.WriteString(template)
	b.WriteString(subtitleText)
	b.WriteByte('\n')
	return b.String()
}
