package credential

// Guidance texts shown when a user invokes a service action without
// credentials, or asks how to connect.

// AsanaGuidance walks a user through creating a personal access token.
const AsanaGuidance = `You haven't connected Asana yet. To connect:

1. Open https://app.asana.com/0/my-apps
2. Click "Create new token" under Personal access tokens
3. Give it a name (for example "Infoundr") and copy the token
4. Send: project connect <your-token>

Your token is stored privately and only used for your own commands.`

// GitHubGuidance walks a user through creating a personal access token.
const GitHubGuidance = `You haven't connected GitHub yet. To connect:

1. Open https://github.com/settings/tokens
2. Click "Generate new token (classic)"
3. Select the "repo" scope and generate the token
4. Send: github connect <your-token>

Then pick a working repository with: github select owner/repo`
