package server

// indexHTML is the minimal question form served at the root. It talks to
// POST /query and needs no static assets.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Aegis Financial Intelligence</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 720px; margin: 3rem auto; padding: 0 1rem; color: #1c1c1e; }
  h1 { font-size: 1.6rem; }
  p.sub { color: #6e6e73; margin-top: -0.6rem; }
  textarea { width: 100%; min-height: 80px; font: inherit; padding: 0.6rem; border: 1px solid #c7c7cc; border-radius: 8px; box-sizing: border-box; }
  button { margin-top: 0.6rem; padding: 0.55rem 1.4rem; font: inherit; border: none; border-radius: 8px; background: #0a63c9; color: #fff; cursor: pointer; }
  button:disabled { background: #c7c7cc; }
  #answer { margin-top: 1.5rem; white-space: pre-wrap; line-height: 1.5; }
  .error { color: #b00020; }
</style>
</head>
<body>
<h1>Aegis Financial Intelligence</h1>
<p class="sub">Ask about Google's 2023 10-K, quarterly financials, or market news.</p>
<textarea id="question" placeholder="What was the total profit in 2023?"></textarea>
<br>
<button id="ask">Ask</button>
<div id="answer"></div>
<script>
const btn = document.getElementById('ask');
const answer = document.getElementById('answer');
btn.addEventListener('click', async () => {
  const question = document.getElementById('question').value.trim();
  if (!question) return;
  btn.disabled = true;
  answer.textContent = 'Thinking…';
  answer.classList.remove('error');
  try {
    const res = await fetch('/query', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({question})
    });
    const data = await res.json();
    if (!res.ok) {
      answer.textContent = data.error || ('Request failed with status ' + res.status);
      answer.classList.add('error');
    } else {
      answer.textContent = data.answer;
    }
  } catch (err) {
    answer.textContent = 'Request failed: ' + err;
    answer.classList.add('error');
  } finally {
    btn.disabled = false;
  }
});
</script>
</body>
</html>
`
