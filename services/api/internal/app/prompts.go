package app

import (
	"fmt"

	"studycompanion/pkg/ai"
	"studycompanion/pkg/domain"
)

const studySystemPrompt = "You are a study assistant. Work only from the content the user provides."

var (
	summaryOptions   = ai.Options{Temperature: ai.Temperature(0.7), MaxOutputTokens: 4096}
	flashcardOptions = ai.Options{Temperature: ai.Temperature(0.7), MaxOutputTokens: 4096}
	quizInfoOptions  = ai.Options{Temperature: ai.Temperature(0.7), MaxOutputTokens: 200}
	quizOptions      = ai.Options{Temperature: ai.Temperature(0.7), MaxOutputTokens: 8192}
	chatOptions      = ai.Options{Temperature: ai.Temperature(0.7), MaxOutputTokens: 512}
)

func summaryPrompt(text string) string {
	return "Summarize the following text in a structured format with headings, " +
		"subheadings, bullet points, concise and small mostly 1 or 2 line explanation, " +
		"including only what is important. Make sure to give the output in markdown. " +
		"ONLY INCLUDE THE TOPIC HEADING in heading 1, there can be multiple subtopics in " +
		"heading 2 and if more subtopics in heading 3. If a list has a header, make the header bold. " +
		"Use italics only for some important WORDS; if italics is used for a topic make it bold as well.\n\n" +
		text
}

func flashcardPrompt(text string, count int) string {
	return fmt.Sprintf(`Generate exactly %d high-quality flashcards from the following content. Each flashcard should have a "question" and a short but precise "answer". Use a structured JSON format as:
[
  {"question": "Question 1?", "answer": "Answer 1"},
  {"question": "Question 2?", "answer": "Answer 2"}
]
Return ONLY the JSON array. Do not include any other text or markdown.
Content:

%s`, count, text)
}

func quizInfoPrompt(text string, difficulty domain.Difficulty, numQuestions int) string {
	return fmt.Sprintf(`Generate a JSON object containing a quiz title and topic based on the given text.
The title should be concise, engaging, and relevant to the content.
The topic should be broad enough to categorize the quiz into one of the popular domains.

Format:
{
  "title": "Generated Quiz Title",
  "topic": "Relevant Quiz Topic",
  "num_questions": %[2]d,
  "difficulty": "%[3]s"
}

Rules:
- Keep the title under 5 words.
- The topic is a single phrase naming a domain, no longer than 3 words.
- Return ONLY JSON, without code fences or extra text.

Text:
%[1]s
Difficulty: %[3]s
Number of questions: %[2]d`, text, numQuestions, difficulty)
}

func quizPrompt(text string, info domain.QuizInfo) string {
	return fmt.Sprintf(`Generate exactly %[1]d multiple-choice questions from the following content.

Each question must:
- Target higher-order thinking (analysis, evaluation, application) appropriate for %[2]s level
- Focus on conceptual understanding rather than surface-level recall
- Include plausible distractors that test for common misconceptions
- Be calibrated to %[2]s difficulty (Beginner: foundational concepts; Intermediate: application of concepts; Advanced: synthesis and evaluation; Expert: edge cases and specialized knowledge)
- Be independent of every other question

Structure:
- "question": a clear, precisely worded question
- "options": four distinct choices keyed "A", "B", "C" and "D"
- "correct_option": the single letter of the correct answer
- Stay on the topic "%[3]s" and the title "%[4]s"

Constraints:
- Generate EXACTLY %[1]d questions
- Distribute correct answers evenly among A, B, C and D
- No two questions may overlap
- Return ONLY a valid JSON array with no explanations, comments, or markdown

[
  {
    "question": "Question?",
    "options": {"A": "...", "B": "...", "C": "...", "D": "..."},
    "correct_option": "B"
  }
]

Content:
%[5]s`, info.NumQuestions, info.Difficulty, info.Topic, info.Title, text)
}

func chatPrompt(message string) string {
	return "Provide a clear and concise response to the following input in at most 5 lines. " +
		"Do not use bullet points, markdown, or any formatting. Keep it direct and easy to understand. Input:\n\n" +
		message
}
